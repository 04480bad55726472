// Package testutil provides shared test helpers for building batch trees,
// phenopackets and index databases.
package testutil

import (
	"encoding/json"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/starford/pfdl/internal/checksum"
	"github.com/starford/pfdl/internal/index"
	"github.com/starford/pfdl/internal/manifest"
	"github.com/starford/pfdl/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "pfdl-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Manifest renders md5sum output for files, in name order.
func Manifest(files map[string][]byte) []byte {
	var sb strings.Builder
	for _, name := range slices.Sorted(maps.Keys(files)) {
		sb.WriteString(checksum.MD5Hex(files[name]))
		sb.WriteString("  ")
		sb.WriteString(name)
		sb.WriteString("\n")
	}
	return []byte(sb.String())
}

// MemoryBatch stores files in an in-memory root together with a matching manifest.
func MemoryBatch(m *storage.Memory, batch string, files map[string][]byte) {
	for name, data := range files {
		m.Put(batch, name, data)
	}
	m.Put(batch, manifest.FileName, Manifest(files))
}

// FSBatch writes files into root/batch together with a matching manifest.
func FSBatch(t *testing.T, root, batch string, files map[string][]byte) {
	t.Helper()
	dir := filepath.Join(root, batch)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, manifest.FileName), Manifest(files), 0o644); err != nil {
		t.Fatal(err)
	}
}

// Individual returns a JSON individual phenopacket for subject that
// references uris.
func Individual(t *testing.T, subject string, uris ...string) []byte {
	t.Helper()
	doc := map[string]any{"id": "pp-" + subject, "files": files(uris)}
	if subject != "" {
		doc["subject"] = map[string]any{"id": subject}
	} else {
		doc["phenotypicFeatures"] = []any{map[string]any{"type": map[string]any{"id": "HP:0000001"}}}
	}
	return mustJSON(t, doc)
}

// Family returns a JSON family phenopacket with a proband for subject. The
// family itself references uris.
func Family(t *testing.T, id, subject string, uris ...string) []byte {
	t.Helper()
	return mustJSON(t, map[string]any{
		"id":      id,
		"proband": map[string]any{"subject": map[string]any{"id": subject}},
		"files":   files(uris),
	})
}

// Consent returns a JSON consentpacket.
func Consent(t *testing.T, code string) []byte {
	t.Helper()
	return mustJSON(t, map[string]any{
		"schemaMajorVersion": 1,
		"dataUse":            map[string]any{"code": code},
	})
}

func files(uris []string) []any {
	out := make([]any, 0, len(uris))
	for _, u := range uris {
		out = append(out, map[string]any{"uri": u})
	}
	return out
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
