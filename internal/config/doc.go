// Package config defines configuration structures for the dirsync CLI.
//
// Configuration can be provided via, in increasing precedence:
//   - YAML configuration file
//   - Environment variables (DIRSYNC_ prefix)
//   - Command-line flags
//
// # Structure
//
//	type Config struct {
//	    Directory       string
//	    Manifest        string
//	    Overrides       string
//	    ParallelNetwork int
//	    Progress        bool
//	    VerifySize      bool
//	    CancelOnFailure bool
//	    CheckDiskSpace  bool
//	    DiskHeadroom    int64
//	    LogLevel        string
//	    HTTP            HTTPConfig
//	}
//
// Sizes such as disk_headroom are written as "100MB" or "1GiB" and
// durations as "30s".
package config
