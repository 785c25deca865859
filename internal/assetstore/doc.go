// Package assetstore persists derived preview assets keyed by source image and
// kind.
//
// Every backend stores at most one current asset per Key together with the
// source Fingerprint it was generated from and the generation time. Callers
// compare fingerprints to detect staleness; the store itself never deletes.
//
// Three backends share the Store interface:
//   - FileStore keeps one file per asset under a content-addressed path with a
//     JSON header line, written via temp file, fsync and rename.
//   - SQLiteStore keeps assets in a single table upserted in one statement.
//   - S3Store keeps one object per asset in a MinIO/S3 bucket with the
//     fingerprint in user metadata.
//
// I/O failures surface as services.ErrStorage; a missing key is
// services.ErrNotFound.
package assetstore
