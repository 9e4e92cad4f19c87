package cache

import "sync"

// Fake is an in-memory Store for tests, avoiding a real bbolt file.
type Fake struct {
	mu   sync.Mutex
	rows map[string]Row
}

// NewFake returns an empty Fake store.
func NewFake() *Fake {
	return &Fake{rows: make(map[string]Row)}
}

func (f *Fake) Get(noteID, sdID string) (Row, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[string(key(noteID, sdID))]
	return row, ok, nil
}

func (f *Fake) Upsert(row Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[string(key(row.NoteID, row.SDID))] = row
	return nil
}

func (f *Fake) Delete(noteID, sdID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, string(key(noteID, sdID)))
	return nil
}

func (f *Fake) Close() error { return nil }
