// Package fsx provides a file storage abstraction backed either by the local
// filesystem or by an S3-compatible object store.
//
// The package is designed to be imported from the module root:
//
//	import "github.com/gostratum/fsx"
//
// The root package holds the backend-agnostic pieces: the Storage and Signer
// interfaces, configuration, path/key normalization and the sentinel errors.
// Backends live under adapters/ (adapters/local, adapters/s3) and the
// filestore package selects one from Config.Backend:
//
//	store, err := filestore.Open(ctx, cfg, fsx.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer store.Stop(ctx)
//
//	if _, err := store.WriteFile(ctx, "docs/readme.txt", data); err != nil {
//	    return err
//	}
//
// Paths are slash-separated. A file key never carries a trailing "/"; a
// directory key carries exactly one. On the object store, directories are
// zero-length marker objects or shared key prefixes.
package fsx
