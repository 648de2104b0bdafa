// Package install copies local override content into the target directory.
//
// A file override lands at its name. A directory override is copied
// recursively below its name, merging with whatever is already there.
package install
