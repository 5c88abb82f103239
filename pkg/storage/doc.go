/*
Package storage provides the document store behind enrollcore.

Data lives in collections of JSON documents addressed by id. Every stored
document carries a version that changes on each write, and versions are
drawn from a sequence that never rewinds, so a deleted and recreated
document never repeats an earlier version.

# Backends

Three implementations share one transaction protocol:

  - BoltStore: embedded bbolt file <dataDir>/enrollcore.db, one bucket per
    collection, created lazily on first write
  - PostgresStore: a single documents table (collection, id, version, data
    JSONB) accessed through a pgx connection pool
  - MemoryStore: in-process maps, used by tests and the memory driver

Open picks one from Options.Driver.

# Transactions

RunTransaction executes the body exactly once against a Tx handle:

	err := store.RunTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
		doc, err := tx.Get("courses", courseID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return tx.Update("courses", courseID, storage.Fields{
			"enrolledStudents": storage.Increment(1),
		})
	})

Reads go straight to the backend and the version seen (0 for a missing
document) is recorded. Writes are buffered. At commit the backend checks,
atomically with applying the writes, that every recorded version is still
current. Any mismatch aborts the whole commit with ErrConflict and nothing
is written. Reading after the first buffered write returns
ErrReadAfterWrite.

The store never retries. Callers that want retry semantics wrap
RunTransaction in their own loop; see the enrollment package.

In bbolt the check and the writes run inside one db.Update, which already
serializes writers. In PostgreSQL the commit is one SQL transaction that
locks every read row with SELECT ... FOR UPDATE; a document read as absent
is written with a plain INSERT so a concurrent creator surfaces as a
unique violation, mapped to ErrConflict along with serialization failures
and deadlocks.

# Updates

Update merges Fields into an existing document and fails with ErrNotFound
when there is none. Field values replace the stored value unless they are
one of the transforms:

	storage.Increment(n)        add n, missing counts as 0
	storage.ArrayUnion(v...)    append values not already present
	storage.ArrayRemove(v...)   drop every occurrence
	storage.DeleteField()       remove the field

# Queries

	q := storage.NewQuery().
		Where("courseId", storage.OpEqual, courseID).
		Where("status", storage.OpIn, []string{"ACTIVE", "COMPLETED"}).
		OrderBy("progress", storage.Descending).
		Limit(10)

Operators are ==, !=, <, <=, >, >= and in. Values are compared in their
JSON form: numbers as float64, and strings that both parse as RFC 3339
timestamps chronologically. A document without a filtered or ordered
field is excluded. Ties in ordering fall back to document id.

PostgresStore pushes equality predicates down as JSONB containment
(data @> ...) and evaluates the rest in process, like the other backends.
*/
package storage
