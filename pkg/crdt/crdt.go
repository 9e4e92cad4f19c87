// Package crdt defines the opaque CRDT-library collaborator boundary
// (spec.md §6). The actual CRDT algorithm is out of scope; the engine
// only ever calls through this interface.
package crdt

// Doc is an opaque CRDT document handle.
type Doc interface {
	// Destroy releases any native resources held by the document.
	Destroy()
}

// Library is the CRDT-library collaborator. Production code is wired
// to a real implementation (e.g. a Yjs-style library via cgo or a
// pure-Go CRDT); tests use FakeLibrary.
type Library interface {
	NewDoc() Doc
	ApplyUpdate(doc Doc, update []byte) error
	EncodeState(doc Doc) []byte
	EncodeStateVector(doc Doc) []byte
	EncodeDiffSince(doc Doc, stateVector []byte) []byte
}
