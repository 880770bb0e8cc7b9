// Package keypath edits nested YAML/JSON documents addressed by dotted keypaths.
//
// A keypath is a dotted string such as "groups[0].nodes[1].volumes[0].source_image".
// Each dot-delimited segment names a mapping key and may carry one or more bracketed
// integer indexes that descend into nested sequences stored under that key.
//
// Documents use the value space produced by decoding YAML or JSON into `any`:
//   - map[string]any for mappings
//   - []any for sequences
//   - scalars (string, bool, numbers) and nil
//
// # Setting values
//
// SetValue walks the keypath from the root mapping, creating missing mapping keys on the
// way. A missing key that is addressed with indexes is created with a skeleton of nested
// sequences sized so that the requested position exists (see Skeleton), which means the
// walk never has to grow a sequence in place:
//
//	doc := map[string]any{}
//	_ = keypath.Set(doc, "groups[0].nodes[1].name", "node-1")
//	// doc == {"groups": [{"nodes": [nil, {"name": "node-1"}]}]}
//
// With WithNewOnMissing(false) a missing key is reported as a *MissingKeyError instead.
//
// # Errors
//
// Every failure is one of *MissingKeyError, *TypeMismatchError or *IndexOutOfRangeError.
// Each carries the keypath walked so far and, where applicable, a JSON dump of the
// offending container. The sentinels ErrMissingKey, ErrTypeMismatch and ErrIndexOutOfRange
// match them with errors.Is.
//
// Negative indexes follow the usual "count from the end" rule when addressing existing
// sequences. When a skeleton is synthesized for a negative index the sequence is sized to
// |index| and the nested value is placed at position 0, so that the negative index
// resolves to it.
package keypath
