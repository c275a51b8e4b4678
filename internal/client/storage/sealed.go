package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/iudanet/medlab/internal/crypto"
)

// keySalt хранит соль Argon2id в открытом виде; при logout не удаляется
const keySalt = "__salt"

// SealedStore implements CredentialStore and provides encryption layer
// between the session manager and the underlying store. It encrypts values
// before saving and decrypts them when retrieving.
type SealedStore struct {
	inner  CredentialStore
	sealer *crypto.Sealer
}

// Compile-time check that SealedStore implements CredentialStore
var _ CredentialStore = (*SealedStore)(nil)

// NewSealedStore derives the store key from passphrase and the salt kept in
// inner (a fresh salt is generated on first use).
func NewSealedStore(ctx context.Context, inner CredentialStore, passphrase string) (*SealedStore, error) {
	salt, err := loadOrCreateSalt(ctx, inner)
	if err != nil {
		return nil, err
	}

	key, err := crypto.DeriveStoreKey(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive store key: %w", err)
	}

	sealer, err := crypto.NewSealer(key)
	if err != nil {
		return nil, err
	}

	return &SealedStore{inner: inner, sealer: sealer}, nil
}

func loadOrCreateSalt(ctx context.Context, inner CredentialStore) ([]byte, error) {
	encoded, err := inner.Get(ctx, keySalt)
	if err == nil {
		salt, decErr := base64.StdEncoding.DecodeString(encoded)
		if decErr != nil {
			return nil, fmt.Errorf("failed to decode store salt: %w", decErr)
		}
		return salt, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to read store salt: %w", err)
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, err
	}
	if err := inner.Set(ctx, keySalt, base64.StdEncoding.EncodeToString(salt)); err != nil {
		return nil, fmt.Errorf("failed to save store salt: %w", err)
	}
	return salt, nil
}

// Get загружает значение и расшифровывает его
func (s *SealedStore) Get(ctx context.Context, key string) (string, error) {
	sealed, err := s.inner.Get(ctx, key)
	if err != nil {
		return "", err
	}

	plain, err := s.sealer.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to open %q: %w", key, err)
	}
	return string(plain), nil
}

// Set шифрует значение и сохраняет его
func (s *SealedStore) Set(ctx context.Context, key, value string) error {
	sealed, err := s.sealer.Seal([]byte(value))
	if err != nil {
		return fmt.Errorf("failed to seal %q: %w", key, err)
	}
	return s.inner.Set(ctx, key, sealed)
}

// SetMany шифрует все значения и сохраняет их одной транзакцией
func (s *SealedStore) SetMany(ctx context.Context, values map[string]string) error {
	sealed := make(map[string]string, len(values))
	for k, v := range values {
		enc, err := s.sealer.Seal([]byte(v))
		if err != nil {
			return fmt.Errorf("failed to seal %q: %w", k, err)
		}
		sealed[k] = enc
	}
	return s.inner.SetMany(ctx, sealed)
}

// RemoveMany удаляет значения; соль не трогаем
func (s *SealedStore) RemoveMany(ctx context.Context, keys ...string) error {
	filtered := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != keySalt {
			filtered = append(filtered, k)
		}
	}
	return s.inner.RemoveMany(ctx, filtered...)
}
