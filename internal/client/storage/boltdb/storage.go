// Package boltdb хранит сессию клиента (токены и кеш профиля) в одном
// bucket файла bbolt.
package boltdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	bolterrors "go.etcd.io/bbolt/errors"

	"github.com/iudanet/medlab/internal/client/storage"
)

// DefaultLockTimeout - сколько ждать flock, пока файл открыт другим процессом
const DefaultLockTimeout = time.Second

var bucketCredentials = []byte("credentials")

// Storage is the bbolt-backed credential store.
type Storage struct {
	db *bbolt.DB
}

// Option настраивает открытие файла
type Option func(*bbolt.Options)

// WithLockTimeout overrides DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(o *bbolt.Options) {
		o.Timeout = d
	}
}

// New opens (or creates) the database file at dbPath with 0600 permissions.
// A file held by another process yields storage.ErrStorageLocked.
func New(ctx context.Context, dbPath string, opts ...Option) (*Storage, error) {
	boltOpts := &bbolt.Options{Timeout: DefaultLockTimeout}
	for _, opt := range opts {
		opt(boltOpts)
	}

	db, err := bbolt.Open(dbPath, 0o600, boltOpts)
	if err != nil {
		if errors.Is(err, bolterrors.ErrTimeout) {
			return nil, fmt.Errorf("open %s: %w", dbPath, storage.ErrStorageLocked)
		}
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCredentials)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create credentials bucket: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close releases the file lock. Повторный вызов безопасен
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
