package storage

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
)

type docKey struct {
	collection string
	id         string
}

func (k docKey) String() string {
	return k.collection + "/" + k.id
}

func compareKeys(a, b docKey) int {
	if c := cmp.Compare(a.collection, b.collection); c != 0 {
		return c
	}
	return cmp.Compare(a.id, b.id)
}

// lockOrder returns the read set sorted by collection then id. Backends that
// take row locks acquire them in this order so two commits over the same
// documents cannot deadlock.
func lockOrder(reads map[docKey]uint64) []docKey {
	return slices.SortedFunc(maps.Keys(reads), compareKeys)
}

type writeKind int

const (
	writeSet writeKind = iota
	writeUpdate
	writeDelete
)

type write struct {
	key    docKey
	kind   writeKind
	data   []byte
	fields Fields
}

// backend is the primitive surface each storage engine provides. The
// transaction protocol on top of it is shared.
type backend interface {
	read(ctx context.Context, key docKey) (*Document, error)

	// commit atomically verifies that every document in reads still has
	// the recorded version (0 meaning absent) and then applies writes
	commit(ctx context.Context, reads map[docKey]uint64, writes []write) error
}

// transaction buffers writes and records the version of every document it
// reads. Nothing reaches the backend until commit.
type transaction struct {
	ctx    context.Context
	b      backend
	reads  map[docKey]uint64
	writes []write
}

func (t *transaction) Get(collection, id string) (*Document, error) {
	if len(t.writes) > 0 {
		return nil, ErrReadAfterWrite
	}
	key := docKey{collection: collection, id: id}

	doc, err := t.b.read(t.ctx, key)
	if errors.Is(err, ErrNotFound) {
		t.observe(key, 0)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	t.observe(key, doc.Version)
	return doc, nil
}

// observe keeps the first version seen so a repeated read of a document
// that moved underneath the transaction still fails at commit
func (t *transaction) observe(key docKey, version uint64) {
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = version
	}
}

func (t *transaction) Set(collection, id string, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	t.writes = append(t.writes, write{key: docKey{collection, id}, kind: writeSet, data: data})
	return nil
}

func (t *transaction) Update(collection, id string, fields Fields) error {
	if len(fields) == 0 {
		return fmt.Errorf("update of %s/%s has no fields", collection, id)
	}
	t.writes = append(t.writes, write{key: docKey{collection, id}, kind: writeUpdate, fields: fields})
	return nil
}

func (t *transaction) Delete(collection, id string) error {
	t.writes = append(t.writes, write{key: docKey{collection, id}, kind: writeDelete})
	return nil
}

func runTransaction(ctx context.Context, b backend, fn TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &transaction{ctx: ctx, b: b, reads: make(map[docKey]uint64)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if len(tx.writes) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.commit(ctx, tx.reads, tx.writes)
}

// single commits one unconditional write
func single(ctx context.Context, b backend, w write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.commit(ctx, nil, []write{w})
}

func setWrite(collection, id string, v any) (write, error) {
	data, err := encode(v)
	if err != nil {
		return write{}, err
	}
	return write{key: docKey{collection, id}, kind: writeSet, data: data}, nil
}

// state is one atomic unit of a key-value backend, such as a bbolt
// read-write transaction
type state interface {
	load(key docKey) (*Document, error)
	store(doc *Document) error
	remove(key docKey) error
	nextVersion(collection string) (uint64, error)
}

// applyCommit implements commit for backends without native document
// versioning. The caller must discard s if an error is returned.
func applyCommit(s state, reads map[docKey]uint64, writes []write) error {
	for key, version := range reads {
		var current uint64
		doc, err := s.load(key)
		switch {
		case err == nil:
			current = doc.Version
		case !errors.Is(err, ErrNotFound):
			return err
		}
		if current != version {
			return fmt.Errorf("%w: %s read at version %d, now %d", ErrConflict, key, version, current)
		}
	}

	for _, w := range writes {
		existing, err := s.load(w.key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		switch w.kind {
		case writeDelete:
			if existing != nil {
				if err := s.remove(w.key); err != nil {
					return err
				}
			}
			continue

		case writeUpdate:
			if existing == nil {
				return fmt.Errorf("%w: %s", ErrNotFound, w.key)
			}
			data, err := applyFields(existing.Data, w.fields)
			if err != nil {
				return fmt.Errorf("%s: %w", w.key, err)
			}
			if err := storeVersioned(s, w.key, data); err != nil {
				return err
			}

		case writeSet:
			if err := storeVersioned(s, w.key, w.data); err != nil {
				return err
			}
		}
	}
	return nil
}

// storeVersioned stamps a fresh version from the collection sequence.
// Sequences never rewind, so a deleted and recreated document cannot
// reuse a version an earlier reader recorded.
func storeVersioned(s state, key docKey, data []byte) error {
	version, err := s.nextVersion(key.collection)
	if err != nil {
		return err
	}
	return s.store(&Document{Collection: key.collection, ID: key.id, Version: version, Data: data})
}
