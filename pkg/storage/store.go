package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned when a transaction observed a document that
	// changed before the transaction could commit
	ErrConflict = errors.New("transaction conflict")

	// ErrReadAfterWrite is returned when a transaction reads after it has
	// buffered a write
	ErrReadAfterWrite = errors.New("transaction reads must happen before writes")

	// ErrClosed is returned by a store that has been closed
	ErrClosed = errors.New("store is closed")
)

// Document is one versioned JSON object in a collection
type Document struct {
	Collection string
	ID         string
	Version    uint64
	Data       json.RawMessage
}

// DataTo decodes the document body into v
func (d *Document) DataTo(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s/%s: %w", d.Collection, d.ID, err)
	}
	return nil
}

// Fields decodes the document body into a generic field map
func (d *Document) Fields() (map[string]any, error) {
	fields := make(map[string]any)
	if err := d.DataTo(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func (d *Document) clone() *Document {
	data := make(json.RawMessage, len(d.Data))
	copy(data, d.Data)
	return &Document{Collection: d.Collection, ID: d.ID, Version: d.Version, Data: data}
}

// Store is a key-addressed document store with optimistic multi-document
// transactions
type Store interface {
	// Get returns the document or ErrNotFound
	Get(ctx context.Context, collection, id string) (*Document, error)

	// Query returns the documents of a collection matching q
	Query(ctx context.Context, collection string, q Query) ([]*Document, error)

	// Set creates or replaces a document
	Set(ctx context.Context, collection, id string, v any) error

	// Update merges fields into an existing document; ErrNotFound if missing
	Update(ctx context.Context, collection, id string, fields Fields) error

	// Delete removes a document; deleting a missing document is not an error
	Delete(ctx context.Context, collection, id string) error

	// RunTransaction runs fn once and commits its buffered writes atomically.
	// It returns ErrConflict when a document read by fn changed before
	// commit. Retrying is the caller's decision.
	RunTransaction(ctx context.Context, fn TxFunc) error

	// NewID returns a fresh document identity
	NewID() string

	// Ping verifies the store is reachable
	Ping(ctx context.Context) error

	Close() error
}

// TxFunc is the body of a transaction
type TxFunc func(ctx context.Context, tx Tx) error

// Tx is the handle passed to a transaction body. All reads must happen
// before the first write.
type Tx interface {
	Get(collection, id string) (*Document, error)
	Set(collection, id string, v any) error
	Update(collection, id string, fields Fields) error
	Delete(collection, id string) error
}

// NewID returns a fresh random document identity
func NewID() string {
	return uuid.NewString()
}

func encode(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		if !isJSONObject(raw) {
			return nil, fmt.Errorf("document body must be a JSON object")
		}
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	if !isJSONObject(data) {
		return nil, fmt.Errorf("document body must be a JSON object")
	}
	return data, nil
}

func isJSONObject(data []byte) bool {
	for _, c := range data {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
