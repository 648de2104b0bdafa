// Package progress aggregates byte progress across concurrent transfers.
//
// A Reporter is created once per download run and shared by every transfer
// task. Transfers call Add with byte increments; the live line is redrawn on
// a ticker and completion lines are printed above it.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    TotalSize: totalBytes,
//	    Output:    os.Stdout,
//	    Live:      true,
//	})
//
//	reporter.Start()
//	reporter.Add(n)
//	reporter.Println(progress.DownloadedLine(size, "mod-a.jar"))
//	reporter.Finish()
//
// # Output Format
//
//	⠹ 4.20 MB/s [##############>-------------------------] 12.40 MB/35.00 MB
package progress
