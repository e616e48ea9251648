// Package appdata implements domain.AppData on top of a filesystem or an S3 bucket.
//
// Layout is the same for every backend: appdata_{instance}/{app}/{folder}/{file}.
// The filesystem backend runs on afero, so the memory mode used in tests and
// development is the same code over afero.MemMapFs.
package appdata
