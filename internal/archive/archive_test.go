package archive

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec()
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestCompressDecodeRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	plain := bytes.Repeat([]byte(`{"name":"q","sql":"SELECT 1"},`), 200)

	packed := c.Compress(plain)
	if !IsCompressed(packed) {
		t.Fatal("Compress() output lacks the zstd magic number")
	}
	if len(packed) >= len(plain) {
		t.Errorf("compressed size %d not smaller than %d", len(packed), len(plain))
	}

	got, err := c.Decode(packed)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Error("Decode(Compress(x)) != x")
	}
}

func TestDecode_PlainPassthrough(t *testing.T) {
	c := newTestCodec(t)
	plain := []byte(`[{"name":"A","sql":"SELECT 1"}]`)

	got, err := c.Decode(plain)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("Decode() = %q, want input unchanged", got)
	}
}

func TestDecode_CorruptFrame(t *testing.T) {
	c := newTestCodec(t)
	corrupt := append(append([]byte{}, zstdMagic...), 0xde, 0xad, 0xbe, 0xef)

	if _, err := c.Decode(corrupt); err == nil {
		t.Error("Decode() of corrupt zstd frame returned nil error")
	}
}

func TestFileName(t *testing.T) {
	day := time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)

	tests := []struct {
		compressed bool
		want       string
	}{
		{false, "sql-snippets-2024-05-01.json"},
		{true, "sql-snippets-2024-05-01.json.zst"},
	}
	for _, tc := range tests {
		if got := FileName(day, tc.compressed); got != tc.want {
			t.Errorf("FileName(compressed=%v) = %q, want %q", tc.compressed, got, tc.want)
		}
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sql-snippets-2024-05-01.json")

	if err := WriteFile(path, []byte("first")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := WriteFile(path, []byte("second")); err != nil {
		t.Fatalf("WriteFile() overwrite error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "second" {
		t.Errorf("file content = %q, want %q", got, "second")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1 (temp file left behind?)", len(entries))
	}
}

func TestWriteFile_MissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.json")

	if err := WriteFile(path, []byte("x")); err == nil {
		t.Error("WriteFile() into a missing directory returned nil error")
	}
}
