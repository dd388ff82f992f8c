// Package repository declares the persistence contracts. Implementations
// live in subpackages (sqlite, memory); consumers depend only on these
// interfaces.
package repository

import (
	"context"
	"errors"

	"github.com/sakif/sql-snippets/internal/model"
)

// ErrQuotaExceeded is returned by a KVStore whose size budget a write would
// exceed. The previous value for the key is left untouched.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// KVStore is the flat key/value persistence medium the snippet store sits on.
//
// Values are opaque blobs. Get reports found=false for a missing key rather
// than an error, so "never written" and "failed to read" stay distinguishable.
type KVStore interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// UserRepository persists accounts created through GitHub login.
type UserRepository interface {
	Upsert(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	SetPaid(ctx context.Context, id string, paid bool) error
}
