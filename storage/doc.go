// Package storage implements the durable export surface of the engine:
// content-addressed backends for audit chains and sealed computation
// results. Backends are created from URIs (memory://, file://, s3://,
// ipfs://, vault://) and can be stacked into a redundant multi-backend
// that stores everywhere and fetches from the first hit.
//
// Content is addressed by the SHA-256 hash of its bytes, so an export
// fetched back from any backend can be integrity-checked for free.
package storage
