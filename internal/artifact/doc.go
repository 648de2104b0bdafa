// Package artifact defines the units of desired content for a sync run.
//
// A Request is a remote artifact identified by its target filename; its
// Source knows how to transfer it. An Override is local content, a file or a
// directory, identified by the name it takes in the target directory.
//
// # Sources
//
//   - HTTPSource streams a URL with go.bug.st/downloader.
//   - BucketSource copies an object from any gocloud.dev/blob bucket.
//   - FetchFunc adapts a plain function.
//
// Every shipped source writes to "<filename>.part" and renames on success,
// so an interrupted transfer never occupies the final name.
//
// Sources that can report a size up front implement Sizer.
package artifact
