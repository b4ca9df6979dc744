// Package sqlite implements the persistent-state backend (component D) on
// top of an embedded SQLite database via GORM, for single-node deployments
// that want a real relational schema without running a database server.
//
// A single *gorm.DB is wrapped in a Store type, WithContext on every call,
// AutoMigrate on open, and a unique-constraint-error check turning a driver
// error into a domain decision rather than a raw SQL error.
package sqlite

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gharra/filed/internal/crypto"
	"github.com/gharra/filed/internal/store"
)

// clientRow mirrors the clients table exactly as named in the schema:
// clients(id PK varchar(16), name varchar(255) not null, last_seen
// varchar(100), rsa_public_key blob, aes_key blob). "id" holds the 32-char
// hex rendering of the 16-byte client id, not the raw bytes.
type clientRow struct {
	ID           string `gorm:"column:id;primaryKey;size:32"`
	Name         string `gorm:"column:name;size:255;not null;uniqueIndex"`
	LastSeen     string `gorm:"column:last_seen;size:100"`
	RSAPublicKey []byte `gorm:"column:rsa_public_key"`
	AESKey       []byte `gorm:"column:aes_key"`
}

func (clientRow) TableName() string { return "clients" }

// fileRow mirrors files(id varchar(16) not null, name varchar(255) not
// null, path_name varchar(255) PK, verified boolean).
type fileRow struct {
	ID       string `gorm:"column:id;size:32;not null;index"`
	Name     string `gorm:"column:name;size:255;not null"`
	PathName string `gorm:"column:path_name;primaryKey;size:255"`
	Verified bool   `gorm:"column:verified"`
}

func (fileRow) TableName() string { return "files" }

// Store is a GORM/SQLite-backed store.Store implementation.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if absent) a SQLite database file at path and runs
// AutoMigrate for the clients and files tables.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&clientRow{}, &fileRow{}); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed")
}

func (s *Store) Register(ctx context.Context, name, now string) ([16]byte, bool, error) {
	var id [16]byte

	for {
		generated, err := crypto.NewClientID()
		if err != nil {
			return id, false, err
		}

		row := clientRow{ID: hex.EncodeToString(generated[:]), Name: name, LastSeen: now}
		err = s.db.WithContext(ctx).Create(&row).Error
		if err == nil {
			return generated, true, nil
		}
		if isUniqueConstraintError(err) {
			var existing clientRow
			lookupErr := s.db.WithContext(ctx).Where("id = ?", row.ID).First(&existing).Error
			if lookupErr == nil {
				continue // id collision, retry with a fresh id
			}
			return id, false, nil // name collision
		}
		return id, false, err
	}
}

func toClient(row *clientRow) *store.Client {
	if row == nil {
		return nil
	}
	return &store.Client{
		IDHex:     row.ID,
		Name:      row.Name,
		LastSeen:  row.LastSeen,
		PublicKey: row.RSAPublicKey,
		AESKey:    row.AESKey,
	}
}

func (s *Store) Find(ctx context.Context, idHex, name string) (*store.Client, error) {
	var row clientRow
	err := s.db.WithContext(ctx).Where("id = ? AND name = ?", idHex, name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toClient(&row), nil
}

func (s *Store) FindByID(ctx context.Context, idHex string) (*store.Client, error) {
	var row clientRow
	err := s.db.WithContext(ctx).Where("id = ?", idHex).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toClient(&row), nil
}

func (s *Store) SetPublicKey(ctx context.Context, idHex string, pub []byte) error {
	return s.db.WithContext(ctx).Model(&clientRow{}).Where("id = ?", idHex).
		Update("rsa_public_key", pub).Error
}

func (s *Store) SetSymmetricKey(ctx context.Context, idHex string, key []byte) error {
	return s.db.WithContext(ctx).Model(&clientRow{}).Where("id = ?", idHex).
		Update("aes_key", key).Error
}

func (s *Store) Touch(ctx context.Context, idHex, now string) error {
	return s.db.WithContext(ctx).Model(&clientRow{}).Where("id = ?", idHex).
		Update("last_seen", now).Error
}

func (s *Store) RecordFile(ctx context.Context, idHex, name, path string) (bool, error) {
	var client clientRow
	err := s.db.WithContext(ctx).Where("id = ?", idHex).First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	row := fileRow{ID: idHex, Name: name, PathName: path, Verified: false}
	err = s.db.WithContext(ctx).Save(&row).Error
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) MarkVerified(ctx context.Context, path string) error {
	return s.db.WithContext(ctx).Model(&fileRow{}).Where("path_name = ?", path).
		Update("verified", true).Error
}

func (s *Store) Stats(ctx context.Context) (int, int, error) {
	var clients, files int64
	if err := s.db.WithContext(ctx).Model(&clientRow{}).Count(&clients).Error; err != nil {
		return 0, 0, err
	}
	if err := s.db.WithContext(ctx).Model(&fileRow{}).Count(&files).Error; err != nil {
		return 0, 0, err
	}
	return int(clients), int(files), nil
}

func (s *Store) ListClients(ctx context.Context) ([]store.Client, error) {
	var rows []clientRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]store.Client, len(rows))
	for i, row := range rows {
		out[i] = *toClient(&row)
	}
	return out, nil
}

func (s *Store) ListFiles(ctx context.Context) ([]store.File, error) {
	var rows []fileRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]store.File, len(rows))
	for i, row := range rows {
		out[i] = store.File{
			ClientIDHex: row.ID,
			Name:        row.Name,
			Path:        row.PathName,
			Verified:    row.Verified,
		}
	}
	return out, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
