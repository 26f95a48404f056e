package keystore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	id "pharmatrust/pkg/domain"
	"pharmatrust/pkg/platform/sentinel"
)

// FileStore keeps one PEM file per identity under a directory, mode 0600.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(identityID id.IdentityID) string {
	return filepath.Join(s.dir, "seller_"+identityID.String()+"_private_key.pem")
}

func (s *FileStore) Put(_ context.Context, identityID id.IdentityID, privateKeyPEM string) error {
	// O_EXCL enforces write-once at the filesystem level.
	f, err := os.OpenFile(s.path(identityID), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create key file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(privateKeyPEM); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

func (s *FileStore) Replace(_ context.Context, identityID id.IdentityID, privateKeyPEM string) error {
	if err := os.WriteFile(s.path(identityID), []byte(privateKeyPEM), 0o600); err != nil {
		return fmt.Errorf("replace key file: %w", err)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, identityID id.IdentityID) (string, error) {
	data, err := os.ReadFile(s.path(identityID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", sentinel.ErrNotFound
		}
		return "", fmt.Errorf("read key file: %w", err)
	}
	return string(data), nil
}
