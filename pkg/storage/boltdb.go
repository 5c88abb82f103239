package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// DefaultBoltFile is the database file name inside the data directory
const DefaultBoltFile = "enrollcore.db"

// boltRecord is the value stored under each document key
type boltRecord struct {
	Version uint64          `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// BoltStore implements Store using BoltDB. Each collection is a bucket
// created on first write; bbolt serializes writers, so a commit sees a
// stable snapshot while it checks the versions recorded by a transaction.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, DefaultBoltFile)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.read(ctx, docKey{collection, id})
}

func (s *BoltStore) Query(ctx context.Context, collection string, q Query) ([]*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var docs []*Document
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			doc, err := decodeRecord(collection, k, v)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return q.Apply(docs)
}

func (s *BoltStore) Set(ctx context.Context, collection, id string, v any) error {
	w, err := setWrite(collection, id, v)
	if err != nil {
		return err
	}
	return single(ctx, s, w)
}

func (s *BoltStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	return single(ctx, s, write{key: docKey{collection, id}, kind: writeUpdate, fields: fields})
}

func (s *BoltStore) Delete(ctx context.Context, collection, id string) error {
	return single(ctx, s, write{key: docKey{collection, id}, kind: writeDelete})
}

func (s *BoltStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	return runTransaction(ctx, s, fn)
}

func (s *BoltStore) NewID() string {
	return NewID()
}

func (s *BoltStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(*bolt.Tx) error { return nil })
}

func (s *BoltStore) read(_ context.Context, key docKey) (*Document, error) {
	var doc *Document
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		doc, err = (&boltState{tx: tx}).load(key)
		return err
	})
	return doc, err
}

func (s *BoltStore) commit(_ context.Context, reads map[docKey]uint64, writes []write) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return applyCommit(&boltState{tx: tx}, reads, writes)
	})
}

// boltState runs applyCommit inside a bbolt transaction; returning an
// error from db.Update rolls every staged write back
type boltState struct {
	tx *bolt.Tx
}

func (b *boltState) load(key docKey) (*Document, error) {
	bucket := b.tx.Bucket([]byte(key.collection))
	if bucket == nil {
		return nil, ErrNotFound
	}
	data := bucket.Get([]byte(key.id))
	if data == nil {
		return nil, ErrNotFound
	}
	return decodeRecord(key.collection, []byte(key.id), data)
}

func (b *boltState) store(doc *Document) error {
	bucket, err := b.tx.CreateBucketIfNotExists([]byte(doc.Collection))
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", doc.Collection, err)
	}
	data, err := json.Marshal(boltRecord{Version: doc.Version, Data: doc.Data})
	if err != nil {
		return err
	}
	return bucket.Put([]byte(doc.ID), data)
}

func (b *boltState) remove(key docKey) error {
	bucket := b.tx.Bucket([]byte(key.collection))
	if bucket == nil {
		return nil
	}
	return bucket.Delete([]byte(key.id))
}

func (b *boltState) nextVersion(collection string) (uint64, error) {
	bucket, err := b.tx.CreateBucketIfNotExists([]byte(collection))
	if err != nil {
		return 0, fmt.Errorf("failed to create bucket %s: %w", collection, err)
	}
	return bucket.NextSequence()
}

// decodeRecord copies out of bbolt memory, which is only valid for the
// life of the transaction
func decodeRecord(collection string, key, value []byte) (*Document, error) {
	var rec boltRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode %s/%s: %w", collection, key, err)
	}
	return &Document{
		Collection: collection,
		ID:         string(key),
		Version:    rec.Version,
		Data:       rec.Data,
	}, nil
}
