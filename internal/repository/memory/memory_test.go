package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/sql-snippets/internal/repository"
)

func TestSetGetDelete(t *testing.T) {
	kv := New(0)
	ctx := context.Background()

	if err := kv.Set(ctx, "k", []byte("value")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	v, found, err := kv.Get(ctx, "k")
	if err != nil || !found || string(v) != "value" {
		t.Fatalf("Get() = (%q, %v, %v), want (\"value\", true, nil)", v, found, err)
	}

	if err := kv.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, found, _ := kv.Get(ctx, "k"); found {
		t.Error("Get() found = true after Delete")
	}
	if kv.Used() != 0 {
		t.Errorf("Used() = %d after Delete, want 0", kv.Used())
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	kv := New(0)
	ctx := context.Background()
	_ = kv.Set(ctx, "k", []byte("abc"))

	v, _, _ := kv.Get(ctx, "k")
	v[0] = 'z'

	again, _, _ := kv.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value mutated through Get() result: %q", again)
	}
}

func TestSet_QuotaExceeded(t *testing.T) {
	kv := New(10)
	ctx := context.Background()

	if err := kv.Set(ctx, "k", []byte("1234")); err != nil {
		t.Fatalf("Set() within quota error = %v", err)
	}

	err := kv.Set(ctx, "k", []byte("123456789012"))
	if !errors.Is(err, repository.ErrQuotaExceeded) {
		t.Fatalf("Set() over quota error = %v, want ErrQuotaExceeded", err)
	}

	v, _, _ := kv.Get(ctx, "k")
	if string(v) != "1234" {
		t.Errorf("value after failed Set = %q, want previous %q", v, "1234")
	}
}

func TestSet_OverwriteReclaimsSpace(t *testing.T) {
	kv := New(10)
	ctx := context.Background()

	if err := kv.Set(ctx, "k", []byte("12345678")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	// Replacing the value frees the old bytes first.
	if err := kv.Set(ctx, "k", []byte("87654321")); err != nil {
		t.Errorf("Set() overwrite of same size error = %v", err)
	}
	if kv.Used() != 9 {
		t.Errorf("Used() = %d, want 9", kv.Used())
	}
}
