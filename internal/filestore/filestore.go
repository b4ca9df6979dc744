// Package filestore maps (client id, file name) pairs to on-disk paths and
// persists the bytes of a file upload as it arrives in fragments.
package filestore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gharra/filed/internal/crypto"
)

// RootDirName is the fixed directory files are stored under, created on
// demand relative to the store's configured data directory.
const RootDirName = "transferred_files"

// Store writes and rewrites file content under a root directory, one
// subdirectory per client id.
type Store struct {
	root string
}

// New constructs a Store rooted at <dataDir>/transferred_files.
func New(dataDir string) *Store {
	return &Store{root: filepath.Join(dataDir, RootDirName)}
}

// PathOf returns the canonical on-disk path for a client's file. basename
// strips any directory components from fileName, which defends against
// path-traversal names arriving on the wire (e.g. "../../etc/passwd").
func (s *Store) PathOf(clientIDHex, fileName string) string {
	return filepath.Join(s.root, clientIDHex, filepath.Base(fileName))
}

// AppendOrTruncate writes data to the canonical path for (clientIDHex,
// fileName). If firstFragment is true the file is truncated (or created)
// before writing; otherwise data is appended to whatever is already there.
// Parent directories are created as needed.
func (s *Store) AppendOrTruncate(clientIDHex, fileName string, data []byte, firstFragment bool) error {
	path := s.PathOf(clientIDHex, fileName)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("filestore: create directory for %q: %w", path, err)
	}

	flags := os.O_WRONLY | os.O_CREATE
	if firstFragment {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("filestore: open %q: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("filestore: write %q: %w", path, err)
	}
	return nil
}

// DecryptInPlace reads the whole file at path, AES-decrypts it under key,
// and overwrites the same path with the decrypted content.
func (s *Store) DecryptInPlace(path string, key []byte) ([]byte, error) {
	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("filestore: read %q: %w", path, err)
	}

	plain, err := crypto.UnwrapFile(ciphertext, key)
	if err != nil {
		return nil, fmt.Errorf("filestore: decrypt %q: %w", path, err)
	}

	if err := os.WriteFile(path, plain, 0o644); err != nil {
		return nil, fmt.Errorf("filestore: rewrite %q: %w", path, err)
	}
	return plain, nil
}
