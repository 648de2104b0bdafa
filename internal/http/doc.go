// Package http provides the network client shared by every transfer of a
// sync run.
//
// This package handles:
//   - Connection pooling sized for the configured download parallelism
//   - HEAD requests to estimate artifact sizes
//   - GET requests for manifests, with retry and exponential backoff
//   - Plain GET streams for hosts that refuse HEAD
//   - Status code classification shared with the transfer fetchers
//
// # Usage
//
//	client := http.NewClient(Options{
//	    MaxIdleConnsPerHost: 32,
//	    Timeout:             30 * time.Second,
//	    RetryAttempts:       5,
//	})
//
//	// Estimate a size
//	info, err := client.Head(ctx, url)
//
//	// Stream a transfer without the metadata timeout
//	httpClient := client.HTTPClient()
//
// Retries only cover getting a response. A body that breaks off mid-transfer
// is not retried; the partial file is cleaned up by the next reconciliation.
package http
