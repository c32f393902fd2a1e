// Package shape implements the hidden-class transition tree for a dynamic
// object runtime.
//
// This package contains:
//   - Interned property names and descriptors
//   - Shape nodes with a tagged, atomically published transitions slot
//   - The sorted transition table (binary search + details tie-break)
//   - The transitions accessor (insert/search/iterate/migrate)
//   - The bounded prototype transition cache
//   - A deterministic heap environment with weak references and collection
package shape
