package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. It is used by tests and by the
// memory driver for local experiments; nothing survives Close.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[docKey]*Document
	seq    uint64
	closed bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[docKey]*Document)}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.read(ctx, docKey{collection, id})
}

func (s *MemoryStore) Query(ctx context.Context, collection string, q Query) ([]*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	var docs []*Document
	for key, doc := range s.docs {
		if key.collection == collection {
			docs = append(docs, doc.clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return q.Apply(docs)
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, v any) error {
	w, err := setWrite(collection, id, v)
	if err != nil {
		return err
	}
	return single(ctx, s, w)
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	return single(ctx, s, write{key: docKey{collection, id}, kind: writeUpdate, fields: fields})
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	return single(ctx, s, write{key: docKey{collection, id}, kind: writeDelete})
}

func (s *MemoryStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	return runTransaction(ctx, s, fn)
}

func (s *MemoryStore) NewID() string {
	return NewID()
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return ctx.Err()
}

// Close drops every document
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.docs = nil
	return nil
}

func (s *MemoryStore) read(_ context.Context, key docKey) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	doc, ok := s.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.clone(), nil
}

func (s *MemoryStore) commit(_ context.Context, reads map[docKey]uint64, writes []write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	staged := &memoryState{base: s, pending: make(map[docKey]*Document), seq: s.seq}
	if err := applyCommit(staged, reads, writes); err != nil {
		return err
	}

	for key, doc := range staged.pending {
		if doc == nil {
			delete(s.docs, key)
		} else {
			s.docs[key] = doc
		}
	}
	s.seq = staged.seq
	return nil
}

// memoryState overlays pending writes on the map so a failed commit
// leaves the store untouched
type memoryState struct {
	base    *MemoryStore
	pending map[docKey]*Document
	seq     uint64
}

func (m *memoryState) load(key docKey) (*Document, error) {
	if doc, ok := m.pending[key]; ok {
		if doc == nil {
			return nil, ErrNotFound
		}
		return doc, nil
	}
	doc, ok := m.base.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (m *memoryState) store(doc *Document) error {
	m.pending[docKey{doc.Collection, doc.ID}] = doc
	return nil
}

func (m *memoryState) remove(key docKey) error {
	m.pending[key] = nil
	return nil
}

func (m *memoryState) nextVersion(string) (uint64, error) {
	m.seq++
	return m.seq, nil
}
