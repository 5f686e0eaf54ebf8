// Package serializer maps cache file extensions to load/save functions.
//
// Selection is purely by the target path's extension; file contents are
// never sniffed. Built-in formats:
//
//   - .msgpack, .mpk: columnar binary table (column-major, msgpack encoded)
//   - .csv, .tsv: delimited text with a header row
//   - .json: column list plus row arrays
//   - .yaml, .yml: same layout as .json
//   - .xlsx: first worksheet, header row plus rows
//
// Callers may pass override load/save functions; when present the registry
// defers to them entirely.
package serializer
