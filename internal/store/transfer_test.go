package store

import (
	"context"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/sakif/sql-snippets/internal/model"
)

func TestExportImportRoundTrip(t *testing.T) {
	src, _, clock := newTestStore(t)
	ctx := context.Background()
	createTestSnippet(t, src, "one", "SELECT 1")
	clock.Advance(time.Second)
	createTestSnippet(t, src, "two", "SELECT 2")

	exported, err := src.Export(ctx)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.Contains(string(exported), "\n  ") {
		t.Errorf("Export() is not pretty-printed:\n%s", exported)
	}

	dst, _, _ := newTestStore(t)
	res, err := dst.Import(ctx, exported)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if !res.Success || res.Count != 2 {
		t.Fatalf("Import() = %+v, want success with count 2", res)
	}

	want := src.List(ctx)
	got := dst.List(ctx)
	if len(got) != len(want) {
		t.Fatalf("imported %d snippets, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Name != want[i].Name || got[i].SQL != want[i].SQL {
			t.Errorf("snippet %d = %+v, want %+v", i, got[i], want[i])
		}
		if !got[i].CreatedAt.Equal(want[i].CreatedAt) || !got[i].LastModified.Equal(want[i].LastModified) {
			t.Errorf("snippet %d timestamps changed across round trip", i)
		}
	}
}

func TestImport_Invalid(t *testing.T) {
	tests := []struct {
		desc    string
		input   string
		wantMsg string
	}{
		{"not json", `{"oops"`, "Invalid JSON format"},
		{"object instead of array", `{"name":"A","sql":"x"}`, "Expected an array of snippets"},
		{"item not an object", `[{"name":"A","sql":"x"}, 42]`, "Each item must be an object (item 2)"},
		{"null item", `[null]`, "Each item must be an object (item 1)"},
		{"missing sql", `[{"name":"A"}]`, "'sql' field (item 1)"},
		{"empty sql", `[{"name":"A","sql":""}]`, "'sql' field"},
		{"missing name", `[{"sql":"SELECT 1"}]`, "'name' field (item 1)"},
		{"name not a string", `[{"name":7,"sql":"SELECT 1"}]`, "'name' field"},
		{"blank name", `[{"name":"  ","sql":"SELECT 1"}]`, "'name' field"},
	}

	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			s, kv, _ := newTestStore(t)
			ctx := context.Background()
			createTestSnippet(t, s, "existing", "SELECT 0")
			before, _, _ := kv.Get(ctx, SnippetsKey)

			res, err := s.Import(ctx, []byte(tc.input))
			if err != nil {
				t.Fatalf("Import() error = %v", err)
			}
			if res.Success {
				t.Fatal("Import() Success = true, want false")
			}
			if !strings.Contains(res.Message, tc.wantMsg) {
				t.Errorf("Import() message = %q, want it to contain %q", res.Message, tc.wantMsg)
			}

			after, _, _ := kv.Get(ctx, SnippetsKey)
			if string(before) != string(after) {
				t.Error("failed Import() changed the stored collection")
			}
		})
	}
}

func TestImport_ReplacesCollectionAndKeepsBackups(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	old := createTestSnippet(t, s, "old", "SELECT 0")
	_ = s.CreateBackup(ctx, old.ID, "old", "SELECT 0 -- wip")

	res, err := s.Import(ctx, []byte(`[{"name":"A","sql":"SELECT 1"}]`))
	if err != nil || !res.Success {
		t.Fatalf("Import() = (%+v, %v)", res, err)
	}

	got := s.List(ctx)
	if len(got) != 1 || got[0].Name != "A" {
		t.Errorf("List() after Import = %+v, want only A", got)
	}
	if _, err := s.GetBackup(ctx, old.ID); err != nil {
		t.Errorf("Import() removed an unrelated backup: %v", err)
	}
}

func TestImport_FillsMissingFields(t *testing.T) {
	s, _, clock := newTestStore(t)
	ctx := context.Background()

	input := `[
		{"id":"dup","name":"first","sql":"SELECT 1","createdAt":"2023-01-01T00:00:00Z","lastModified":"2023-01-02T00:00:00Z"},
		{"id":"dup","name":"second","sql":"SELECT 2"},
		{"name":"third","sql":"SELECT 3","createdAt":"not a date"},
		{"id":"inverted","name":"fourth","sql":"SELECT 4","createdAt":"2023-05-01T00:00:00Z","lastModified":"2023-01-01T00:00:00Z"},
		{"id":"epoch","name":"fifth","sql":"SELECT 5","createdAt":1672531200000,"lastModified":1672617600000}
	]`
	res, err := s.Import(ctx, []byte(input))
	if err != nil || !res.Success || res.Count != 5 {
		t.Fatalf("Import() = (%+v, %v), want success with count 5", res, err)
	}

	byName := map[string]model.Snippet{}
	ids := map[string]bool{}
	for _, sn := range s.List(ctx) {
		byName[sn.Name] = sn
		if ids[sn.ID] {
			t.Errorf("duplicate id %q after import", sn.ID)
		}
		ids[sn.ID] = true
		if sn.LastModified.Before(sn.CreatedAt) {
			t.Errorf("%s: lastModified before createdAt", sn.Name)
		}
	}

	if byName["first"].ID != "dup" {
		t.Errorf("first keeps its id: got %q", byName["first"].ID)
	}
	if !byName["first"].CreatedAt.Equal(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first createdAt = %v", byName["first"].CreatedAt)
	}
	if byName["second"].ID == "dup" || !strings.HasPrefix(byName["second"].ID, "snippet-") {
		t.Errorf("duplicate id not regenerated: %q", byName["second"].ID)
	}
	if !byName["third"].CreatedAt.Equal(clock.Now()) {
		t.Errorf("unparsable createdAt not replaced by import time: %v", byName["third"].CreatedAt)
	}
	if !byName["fourth"].CreatedAt.Equal(clock.Now()) || !byName["fourth"].LastModified.Equal(clock.Now()) {
		t.Errorf("inverted timestamps not reset: %+v", byName["fourth"])
	}
	if !byName["fifth"].CreatedAt.Equal(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("epoch createdAt = %v", byName["fifth"].CreatedAt)
	}
}

func TestImport_EmptyArray(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	createTestSnippet(t, s, "gone", "SELECT 1")

	res, err := s.Import(ctx, []byte(`[]`))
	if err != nil || !res.Success || res.Count != 0 {
		t.Fatalf("Import([]) = (%+v, %v)", res, err)
	}
	if len(s.List(ctx)) != 0 {
		t.Error("Import([]) did not replace the collection")
	}
}

func TestExport_Shape(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	createTestSnippet(t, s, "shape", "SELECT 1")

	out, err := s.Export(ctx)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var items []map[string]any
	if err := json.Unmarshal(out, &items); err != nil {
		t.Fatalf("Export() is not a JSON array: %v", err)
	}
	for _, key := range []string{"id", "name", "sql", "createdAt", "lastModified"} {
		if _, ok := items[0][key]; !ok {
			t.Errorf("exported snippet missing %q", key)
		}
	}
	if ts, _ := items[0]["createdAt"].(string); ts != "2024-05-01T09:30:00Z" {
		t.Errorf("createdAt = %q, want ISO 8601", ts)
	}
}
