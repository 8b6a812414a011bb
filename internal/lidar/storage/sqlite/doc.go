// Package sqlite persists segmentation runs in SQLite.
//
// A run is one pass of one algorithm over a frame range with fixed
// parameters. Each window of a run stores one evaluation row and one row
// per output cluster. All database reads and writes live here rather than
// in the layer packages, which stay free of SQL.
//
// The schema is owned by the embedded migrations in migrations/ and is
// applied with golang-migrate when a database is opened.
package sqlite
