// Package memory implements an in-process persistent-state backend backed
// by maps guarded by a single RWMutex. It is the reference backend the
// dispatcher's state-machine tests run against, and a reasonable choice for
// a single-process demo deployment.
//
// Every read returns a copy so a caller mutating the returned struct
// cannot corrupt the store's own state.
package memory

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/gharra/filed/internal/crypto"
	"github.com/gharra/filed/internal/store"
)

// Store is an in-memory store.Store implementation.
type Store struct {
	mu      sync.RWMutex
	clients map[string]*store.Client // keyed by id hex
	names   map[string]string        // name -> id hex
	files   map[string]*store.File   // keyed by canonical path
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		clients: make(map[string]*store.Client),
		names:   make(map[string]string),
		files:   make(map[string]*store.File),
	}
}

func copyClient(c *store.Client) *store.Client {
	if c == nil {
		return nil
	}
	clone := *c
	clone.PublicKey = append([]byte(nil), c.PublicKey...)
	clone.AESKey = append([]byte(nil), c.AESKey...)
	return &clone
}

func (s *Store) Register(_ context.Context, name, now string) ([16]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id [16]byte
	if _, exists := s.names[name]; exists {
		return id, false, nil
	}

	for {
		generated, err := crypto.NewClientID()
		if err != nil {
			return id, false, err
		}
		id = generated
		hexID := hex.EncodeToString(id[:])
		if _, collides := s.clients[hexID]; !collides {
			s.clients[hexID] = &store.Client{IDHex: hexID, Name: name, LastSeen: now}
			s.names[name] = hexID
			return id, true, nil
		}
	}
}

func (s *Store) Find(_ context.Context, idHex, name string) (*store.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[idHex]
	if !ok || c.Name != name {
		return nil, nil
	}
	return copyClient(c), nil
}

func (s *Store) FindByID(_ context.Context, idHex string) (*store.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyClient(s.clients[idHex]), nil
}

func (s *Store) SetPublicKey(_ context.Context, idHex string, pub []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[idHex]; ok {
		c.PublicKey = append([]byte(nil), pub...)
	}
	return nil
}

func (s *Store) SetSymmetricKey(_ context.Context, idHex string, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[idHex]; ok {
		c.AESKey = append([]byte(nil), key...)
	}
	return nil
}

func (s *Store) Touch(_ context.Context, idHex, now string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[idHex]; ok {
		c.LastSeen = now
	}
	return nil
}

func (s *Store) RecordFile(_ context.Context, idHex, name, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[idHex]; !ok {
		return false, nil
	}
	s.files[path] = &store.File{ClientIDHex: idHex, Name: name, Path: path, Verified: false}
	return true, nil
}

func (s *Store) MarkVerified(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[path]; ok {
		f.Verified = true
	}
	return nil
}

func (s *Store) Stats(_ context.Context) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients), len(s.files), nil
}

func (s *Store) ListClients(_ context.Context) ([]store.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, *copyClient(c))
	}
	return out, nil
}

func (s *Store) ListFiles(_ context.Context) ([]store.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.File, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, *f)
	}
	return out, nil
}

func (s *Store) Close() error { return nil }
