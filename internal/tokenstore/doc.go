// Package tokenstore persists authorization state on disk, one JSON file
// per provider, with an in-memory cache in front.
//
// The store handles sensitive credentials: files are written with 0600
// permissions in a 0700 directory, and token values are never logged.
package tokenstore
