// Package rangefetch fetches byte ranges from many remote objects at once.
//
// One Client serves generic HTTP URLs, S3 and S3-compatible stores, Google
// Cloud Storage and Azure Blob Storage. Backend clients are built lazily,
// once per configuration identity, and shared by every call that resolves
// to the same identity.
//
// Batch calls fan out one goroutine per item and return one Outcome per
// input, in input order. A failing item never fails its siblings: each
// Outcome carries either the bytes or the item's own error. Transport
// failures are retried once, immediately; error responses from the remote
// end are final.
//
// Beyond ranged reads the Client lists and stats objects, uploads batches of
// small objects and drives S3 multipart uploads through explicit sessions.
//
// Example usage:
//
//	client, err := rangefetch.New(rangefetch.WithConcurrencyLimit(32))
//	if err != nil {
//	    return err
//	}
//
//	outcomes, err := client.FetchRanges(ctx,
//	    []string{"my-bucket/a.bin", "my-bucket/b.bin"},
//	    []uint64{0, 1024}, []uint64{512, 2048},
//	    rftypes.BackendConfig{Kind: rftypes.KindS3, Region: "us-west-2"},
//	)
package rangefetch
