package iterator

// This file documents the recommended adapter pattern for iterator implementations.
//
// Guidelines for Iterator Adapters:
//
// 1. Naming Convention:
//    - Use the suffix "Iterator" for adapter types
//    - Use "New[SourceType]Iterator" for constructor functions
//
// 2. Implementation Pattern:
//    - Store the source as a field
//    - Implement the Iterator interface by delegating to the source
//    - Keys are uint64, so 0 is a real key: track validity explicitly
//      instead of using a zero key as the end marker
//    - Surface I/O failures through Err and become invalid
//
// 3. Adapter Location:
//    - Implement adapters within the package that owns the source type
//    - For example, memtable adapters live in the memtable package and block
//      cursors in the sstable package
//
// Example:
//
// // ExampleIterator adapts a SourceCursor to the common Iterator interface
// type ExampleIterator struct {
//     source SourceCursor
// }
//
// func NewExampleIterator(source SourceCursor) *ExampleIterator {
//     return &ExampleIterator{source: source}
// }
//
// func (a *ExampleIterator) Seek(target uint64) bool {
//     return a.source.Seek(target)
// }
//
// func (a *ExampleIterator) Value() []byte {
//     if !a.Valid() {
//         return nil
//     }
//     return a.source.Value()
// }
//
// func (a *ExampleIterator) Valid() bool {
//     return a.source != nil && a.source.Valid()
// }
