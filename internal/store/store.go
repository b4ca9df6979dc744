// Package store defines the persistent-state contract (component D): the
// two durable tables for clients and transferred files, with the
// upsert/read primitives the dispatcher drives its state machine through.
// Concrete backends (memory, badger, sqlite, postgres) live in subpackages
// and all satisfy the Store interface defined here.
package store

import "context"

// Store is the persistent-state contract. Implementations must serialize
// their own writes (a single mutex around the backing connection and any
// in-memory mirror is sufficient) so that last_seen updates, key rotation
// and file-row upserts are each individually atomic with respect to
// concurrent observers, per the concurrency model.
type Store interface {
	// Register creates a new client row with the given name iff no client
	// with that name already exists. ok is false on a name collision; the
	// returned id is only meaningful when ok is true.
	Register(ctx context.Context, name, now string) (id [16]byte, ok bool, err error)

	// Find returns the client record iff both idHex and name match a
	// stored row, or nil if not.
	Find(ctx context.Context, idHex, name string) (*Client, error)

	// FindByID returns the client record for idHex, or nil if unknown.
	FindByID(ctx context.Context, idHex string) (*Client, error)

	// SetPublicKey stores pub for idHex. No-op for an unknown id.
	SetPublicKey(ctx context.Context, idHex string, pub []byte) error

	// SetSymmetricKey stores key for idHex. No-op for an unknown id.
	SetSymmetricKey(ctx context.Context, idHex string, key []byte) error

	// Touch updates last_seen for idHex. No-op for an unknown id.
	Touch(ctx context.Context, idHex, now string) error

	// RecordFile inserts or replaces the file row at path with
	// verified=false. Returns false if idHex names no known client.
	RecordFile(ctx context.Context, idHex, name, path string) (bool, error)

	// MarkVerified flips verified to true for the row at path, if it exists.
	MarkVerified(ctx context.Context, path string) error

	// Stats reports row counts, for the startup debug dump.
	Stats(ctx context.Context) (clients int, files int, err error)

	// ListClients returns every client row, for the startup debug dump.
	ListClients(ctx context.Context) ([]Client, error)

	// ListFiles returns every file row, for the startup debug dump.
	ListFiles(ctx context.Context) ([]File, error)

	// Close releases any resources (connections, file handles) held by the
	// backend.
	Close() error
}

// Client mirrors one row of the clients table.
type Client struct {
	IDHex     string
	Name      string
	LastSeen  string
	PublicKey []byte
	AESKey    []byte
}

// File mirrors one row of the files table.
type File struct {
	ClientIDHex string
	Name        string
	Path        string
	Verified    bool
}
