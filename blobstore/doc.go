// Package blobstore exposes stored RAGFiles as random-access byte streams.
//
// A ragfile Reader consumes any io.ReaderAt plus a size. Blob is that pair
// with a Close method, and Store opens blobs by name. The package ships:
//
//   - LocalStore / OpenFile: local files, memory-mapped read-only
//   - MemoryStore / Buffer: in-memory blobs for tests and staging
//   - Throttle: a bandwidth limit in front of any Blob
//
// Sub-packages s3 and minio serve blobs from object storage through ranged
// GET requests. Remote failures that may succeed on retry (timeouts, 5xx
// and throttling responses) are wrapped so errors.Is(err, ErrTransient)
// holds; the ragfile stream layer retries those.
//
// Implementations must be safe for concurrent use.
package blobstore
