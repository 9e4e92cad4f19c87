package crdt

import (
	"encoding/binary"
	"sort"
)

// FakeDoc is an order-independent test double for Doc: it keeps the
// distinct set of update byte-strings applied to it so far. Because
// the resulting state is a function of the *set* of applied updates,
// not their application order, it is suitable for exercising the
// engine's convergence properties (spec.md §8) without depending on a
// real CRDT implementation.
type FakeDoc struct {
	updates map[string][]byte
}

func newFakeDoc() *FakeDoc {
	return &FakeDoc{updates: make(map[string][]byte)}
}

func (d *FakeDoc) Destroy() { d.updates = nil }

// Text returns the deterministic, order-independent rendering of the
// applied updates: each distinct update's bytes, sorted, concatenated.
// Tests use this to assert on the converged "document contents".
func (d *FakeDoc) Text() []byte {
	keys := make([]string, 0, len(d.updates))
	for k := range d.updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []byte
	for _, k := range keys {
		out = append(out, d.updates[k]...)
	}
	return out
}

// FakeLibrary implements Library over FakeDoc.
type FakeLibrary struct{}

// NewFakeLibrary returns a Library test double.
func NewFakeLibrary() *FakeLibrary { return &FakeLibrary{} }

func (FakeLibrary) NewDoc() Doc { return newFakeDoc() }

func (FakeLibrary) ApplyUpdate(doc Doc, update []byte) error {
	d := doc.(*FakeDoc)
	cp := make([]byte, len(update))
	copy(cp, update)
	d.updates[string(cp)] = cp
	return nil
}

// EncodeState serializes the full update set as a varint-length-prefixed
// sequence, sorted for determinism.
func (FakeLibrary) EncodeState(doc Doc) []byte {
	d := doc.(*FakeDoc)
	keys := make([]string, 0, len(d.updates))
	for k := range d.updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []byte
	hdr := make([]byte, binary.MaxVarintLen64)
	for _, k := range keys {
		n := binary.PutUvarint(hdr, uint64(len(k)))
		out = append(out, hdr[:n]...)
		out = append(out, k...)
	}
	return out
}

// EncodeStateVector returns the same encoding as EncodeState: for this
// fake, "what I have" and "my full state" coincide.
func (FakeLibrary) EncodeStateVector(doc Doc) []byte {
	return FakeLibrary{}.EncodeState(doc)
}

// EncodeDiffSince returns the updates in doc not present in the
// decoded peer state vector.
func (FakeLibrary) EncodeDiffSince(doc Doc, stateVector []byte) []byte {
	have := decodeUpdateSet(stateVector)
	d := doc.(*FakeDoc)

	keys := make([]string, 0)
	for k := range d.updates {
		if _, ok := have[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var out []byte
	hdr := make([]byte, binary.MaxVarintLen64)
	for _, k := range keys {
		n := binary.PutUvarint(hdr, uint64(len(k)))
		out = append(out, hdr[:n]...)
		out = append(out, k...)
	}
	return out
}

func decodeUpdateSet(encoded []byte) map[string]struct{} {
	set := make(map[string]struct{})
	buf := encoded
	for len(buf) > 0 {
		n, sz := binary.Uvarint(buf)
		if sz <= 0 {
			break
		}
		buf = buf[sz:]
		if int(n) > len(buf) {
			break
		}
		set[string(buf[:n])] = struct{}{}
		buf = buf[n:]
	}
	return set
}

// RestoreDoc decodes a state blob produced by EncodeState back into a
// fresh FakeDoc, analogous to an FSM's Restore (pkg/manager/fsm.go in
// the teacher).
func RestoreDoc(state []byte) *FakeDoc {
	d := newFakeDoc()
	for k := range decodeUpdateSet(state) {
		d.updates[k] = []byte(k)
	}
	return d
}
