// Package downloader runs the transfers a reconciliation left to do.
//
// Execute starts one goroutine per request and bounds how many are moving
// bytes at once with a weighted semaphore. Every transfer feeds the same
// progress.Reporter, which owns the only state shared between goroutines.
//
//	err := downloader.Execute(ctx, dir, requests, downloader.Options{
//	    MaxConcurrency: 10,
//	    Client:         client,
//	    Progress:       reporter,
//	})
//
// # Failure
//
// The first failed transfer ends the run with a *FetchError. Transfers
// still in flight are abandoned by default: they keep running until they
// finish on their own and their results are discarded. Set CancelOnFailure
// to cancel them instead. Either way an interrupted transfer leaves only a
// ".part" file, which the next reconciliation removes.
package downloader
