// Package badger implements the persistent-state backend (component D) on
// top of an embedded BadgerDB instance, for single-process deployments that
// need state to survive a restart without standing up a separate database.
//
// Uses a key-namespace-prefix convention and the db.Update/db.View
// transaction idiom: each record type gets a short string prefix, values
// are JSON-encoded, and every write goes through a single transaction so a
// register-then-index sequence is atomic.
package badger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/gharra/filed/internal/crypto"
	"github.com/gharra/filed/internal/store"
)

const (
	prefixClient    = "client:" // client:<idHex> -> clientRecord
	prefixClientIdx = "byname:" // byname:<name> -> idHex
	prefixFile      = "file:"   // file:<path> -> fileRecord
)

type clientRecord struct {
	IDHex     string
	Name      string
	LastSeen  string
	PublicKey []byte
	AESKey    []byte
}

type fileRecord struct {
	ClientIDHex string
	Name        string
	Path        string
	Verified    bool
}

// Store is a BadgerDB-backed store.Store implementation.
type Store struct {
	db *badgerdb.DB
}

// Open opens (creating if absent) a BadgerDB database rooted at dir.
func Open(dir string) (*Store, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

func keyClient(idHex string) []byte   { return []byte(prefixClient + idHex) }
func keyClientIdx(name string) []byte { return []byte(prefixClientIdx + name) }
func keyFile(path string) []byte      { return []byte(prefixFile + path) }

func (s *Store) Register(_ context.Context, name, now string) ([16]byte, bool, error) {
	var id [16]byte
	var created bool

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(keyClientIdx(name)); err == nil {
			return nil // name taken, created stays false
		} else if err != badgerdb.ErrKeyNotFound {
			return err
		}

		for {
			generated, err := crypto.NewClientID()
			if err != nil {
				return err
			}
			idHex := hex.EncodeToString(generated[:])
			if _, err := txn.Get(keyClient(idHex)); err == nil {
				continue // collision, retry
			} else if err != badgerdb.ErrKeyNotFound {
				return err
			}

			rec := clientRecord{IDHex: idHex, Name: name, LastSeen: now}
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := txn.Set(keyClient(idHex), data); err != nil {
				return err
			}
			if err := txn.Set(keyClientIdx(name), []byte(idHex)); err != nil {
				return err
			}
			id = generated
			created = true
			return nil
		}
	})
	if err != nil {
		return id, false, err
	}
	return id, created, nil
}

func (s *Store) getClient(txn *badgerdb.Txn, idHex string) (*clientRecord, error) {
	item, err := txn.Get(keyClient(idHex))
	if err == badgerdb.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec clientRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func toClient(rec *clientRecord) *store.Client {
	if rec == nil {
		return nil
	}
	return &store.Client{
		IDHex:     rec.IDHex,
		Name:      rec.Name,
		LastSeen:  rec.LastSeen,
		PublicKey: rec.PublicKey,
		AESKey:    rec.AESKey,
	}
}

func (s *Store) Find(_ context.Context, idHex, name string) (*store.Client, error) {
	var rec *clientRecord
	err := s.db.View(func(txn *badgerdb.Txn) error {
		r, err := s.getClient(txn, idHex)
		if err != nil {
			return err
		}
		if r != nil && r.Name == name {
			rec = r
		}
		return nil
	})
	return toClient(rec), err
}

func (s *Store) FindByID(_ context.Context, idHex string) (*store.Client, error) {
	var rec *clientRecord
	err := s.db.View(func(txn *badgerdb.Txn) error {
		r, err := s.getClient(txn, idHex)
		rec = r
		return err
	})
	return toClient(rec), err
}

func (s *Store) updateClient(idHex string, mutate func(*clientRecord)) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		rec, err := s.getClient(txn, idHex)
		if err != nil {
			return err
		}
		if rec == nil {
			return nil
		}
		mutate(rec)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(keyClient(idHex), data)
	})
}

func (s *Store) SetPublicKey(_ context.Context, idHex string, pub []byte) error {
	return s.updateClient(idHex, func(r *clientRecord) { r.PublicKey = pub })
}

func (s *Store) SetSymmetricKey(_ context.Context, idHex string, key []byte) error {
	return s.updateClient(idHex, func(r *clientRecord) { r.AESKey = key })
}

func (s *Store) Touch(_ context.Context, idHex, now string) error {
	return s.updateClient(idHex, func(r *clientRecord) { r.LastSeen = now })
}

func (s *Store) RecordFile(_ context.Context, idHex, name, path string) (bool, error) {
	var ok bool
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		rec, err := s.getClient(txn, idHex)
		if err != nil {
			return err
		}
		if rec == nil {
			return nil
		}
		frec := fileRecord{ClientIDHex: idHex, Name: name, Path: path, Verified: false}
		data, err := json.Marshal(frec)
		if err != nil {
			return err
		}
		if err := txn.Set(keyFile(path), data); err != nil {
			return err
		}
		ok = true
		return nil
	})
	return ok, err
}

func (s *Store) MarkVerified(_ context.Context, path string) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyFile(path))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var rec fileRecord
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
			return err
		}
		rec.Verified = true
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(keyFile(path), data)
	})
}

func (s *Store) Stats(_ context.Context) (int, int, error) {
	var clients, files int
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefixClient)); it.ValidForPrefix([]byte(prefixClient)); it.Next() {
			clients++
		}
		for it.Seek([]byte(prefixFile)); it.ValidForPrefix([]byte(prefixFile)); it.Next() {
			files++
		}
		return nil
	})
	return clients, files, err
}

func (s *Store) ListClients(_ context.Context) ([]store.Client, error) {
	var out []store.Client
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixClient)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec clientRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			out = append(out, *toClient(&rec))
		}
		return nil
	})
	return out, err
}

func (s *Store) ListFiles(_ context.Context) ([]store.File, error) {
	var out []store.File
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixFile)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec fileRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			out = append(out, store.File{
				ClientIDHex: rec.ClientIDHex,
				Name:        rec.Name,
				Path:        rec.Path,
				Verified:    rec.Verified,
			})
		}
		return nil
	})
	return out, err
}

func (s *Store) Close() error {
	return s.db.Close()
}
