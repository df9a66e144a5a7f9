// Package storage implements content-addressed snapshot backends for
// archiving aggregated model versions.
//
// Backends are created from location URIs by SnapshotBackendFactory:
//
//   - file:///var/lib/snapshots - local filesystem
//   - s3://bucket/prefix/?region=us-east-1 - Amazon S3 or compatible
//   - ipfs://host:5001/ - IPFS node
//
// Several URIs can be combined into a MultiBackend that replicates
// writes to every reachable backend and serves reads from the first one
// holding the snapshot.
package storage
