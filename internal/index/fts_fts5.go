//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
	"unicode"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS artifacts_fts USING fts5(
			name UNINDEXED,
			batch,
			terms,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

// terms splits an artifact name into words so that "HG002.hg38.bam"
// matches "hg38" as well as the full name.
func terms(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return name + " " + strings.Join(parts, " ")
}

func ftsUpsert(tx *sql.Tx, name, batch string) error {
	_, _ = tx.Exec(`DELETE FROM artifacts_fts WHERE name = ?`, name)
	_, err := tx.Exec(`INSERT INTO artifacts_fts (name, batch, terms) VALUES (?, ?, ?)`,
		name, batch, terms(name))
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, name string) {
	_, _ = tx.Exec(`DELETE FROM artifacts_fts WHERE name = ?`, name)
}

// Search performs an FTS5 full-text search and returns matching results with snippets.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT name,
		       batch,
		       snippet(artifacts_fts, 2, '<b>', '</b>', '...', 16)
		FROM artifacts_fts
		WHERE artifacts_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Name, &r.Batch, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
