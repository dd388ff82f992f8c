package archive

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sakif/sql-snippets/internal/repository/memory"
	"github.com/sakif/sql-snippets/internal/store"
)

// A compressed export file imports back into an empty store.
func TestCompressedExportImportsBack(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := newTestCodec(t)

	src := store.New(memory.New(0), logger)
	if _, err := src.Create(ctx, "daily active", "SELECT COUNT(*) FROM logins"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	exported, err := src.Export(ctx)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), FileName(time.Now(), true))
	if err := WriteFile(path, c.Compress(exported)); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	plain, err := c.Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	dst := store.New(memory.New(0), logger)
	res, err := dst.Import(ctx, plain)
	if err != nil || !res.Success || res.Count != 1 {
		t.Fatalf("Import() = (%+v, %v), want success with count 1", res, err)
	}
	if got := dst.List(ctx); got[0].Name != "daily active" {
		t.Errorf("imported name = %q", got[0].Name)
	}
}
