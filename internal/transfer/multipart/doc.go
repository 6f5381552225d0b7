// Package multipart coordinates S3-style multipart uploads.
//
// A Session records the ETag of every uploaded part so Complete can build
// the manifest itself. Parts may be uploaded concurrently and in any order;
// re-uploading a part number replaces the recorded ETag. A session moves
// from uploading to completed or aborted exactly once, and every later call
// on it fails with ErrSessionClosed.
package multipart
