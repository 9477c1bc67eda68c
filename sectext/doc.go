// Package sectext reads and writes sectioned plain-text files under a
// caller-built schema.
//
// A file is a sequence of contexts (sections). Each context opens with a
// line naming it and holds indented "key: content" field lines:
//
//	META
//		title: Hello World
//		count: 5
//
//	ITEMS
//		item: apple
//
//	ITEMS 2
//		item: banana
//
// # Schema
//
// A Schema lists the contexts, the value types, and the descriptors that
// map each key to a value type and a setter. Contexts may carry a rule:
// singular or multiple contexts build one InnerRecord per occurrence, and
// multiple contexts read an optional index token ("ITEMS 2"). Schemas are
// assembled with a Builder and are immutable afterwards.
//
// # Reading
//
// Reader walks lines through a small state machine: indexer split, line
// correction, comment/blank handling (which ends the open context),
// sub-document delegation, context detection, and field reading. Fields
// are buffered as Terms and resolved ("solved") when their context ends.
// Unknown keys, unparsable values and type mismatches are reported as
// Diagnostics and skip only the affected term.
//
// Line conventions:
//   - "//", "--" and "__" start a comment line
//   - a trailing bare ":" is dropped
//   - "undefined", "x", "xx...", "x-x" stand for the value type's default
//
// # Writing
//
// Writer calls each context's Emitter in write order and formats the
// resulting terms. Constrained writes take untouched contexts from the
// existing file; files are replaced atomically.
//
// # Packing
//
// Packed files hold a window of W records, window N covering indices
// N*W+1 through N*W+W, each record introduced by a marker line such as
// "[ 0001 ]". Writing a window merges with the records already stored.
//
// Readers and Writers keep no state between calls but are not meant for
// concurrent use of one instance. A Schema may be shared freely.
package sectext
