package cache

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var bucketNoteSyncState = []byte("note_sync_state")

// BoltStore is a bbolt-backed Store. One bucket, one row per key,
// keyed as "{sdId}/{noteId}" so lookups and deletes are single Get/Put
// calls with no secondary index.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a bbolt database at
// dataDir/cache.db with the note_sync_state bucket provisioned.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "cache.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketNoteSyncState)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create note_sync_state bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func key(noteID, sdID string) []byte {
	return []byte(sdID + "/" + noteID)
}

func (s *BoltStore) Get(noteID, sdID string) (Row, bool, error) {
	var row Row
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNoteSyncState)
		data := b.Get(key(noteID, sdID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &row)
	})
	return row, found, err
}

func (s *BoltStore) Upsert(row Row) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNoteSyncState)
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to marshal cache row: %w", err)
		}
		return b.Put(key(row.NoteID, row.SDID), data)
	})
}

func (s *BoltStore) Delete(noteID, sdID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNoteSyncState)
		return b.Delete(key(noteID, sdID))
	})
}
