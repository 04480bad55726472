package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/pfdl/internal/apperr"
	"github.com/starford/pfdl/internal/checksum"
)

// ArtifactRow represents a row in the artifacts table: the current version
// of one artifact name.
type ArtifactRow struct {
	Name        string       `json:"name"`
	Batch       string       `json:"batch"`
	Size        int64        `json:"size"`
	Checksums   checksum.Set `json:"checksums"`
	URIs        []string     `json:"uris"`
	Fingerprint string       `json:"-"`
	Versions    int          `json:"versions"`
	Deleted     bool         `json:"deleted"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// VersionRow is one per-root artifact of one history entry. Position 0 is
// the current version.
type VersionRow struct {
	Name      string       `json:"name"`
	Position  int          `json:"position"`
	Batch     string       `json:"batch"`
	Root      string       `json:"root"`
	URI       string       `json:"uri"`
	Size      int64        `json:"size"`
	Checksums checksum.Set `json:"checksums"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	Name    string `json:"name"`
	Batch   string `json:"batch"`
	Snippet string `json:"snippet"`
}

// UpsertArtifact inserts or replaces an artifact, its FTS entry and its
// versions within a transaction.
func (db *DB) UpsertArtifact(row ArtifactRow, versions []VersionRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	sumsJSON, _ := json.Marshal(row.Checksums)
	urisJSON, _ := json.Marshal(row.URIs)
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}

	_, err = tx.Exec(`
		INSERT INTO artifacts (name, batch, size, checksums, uris, fingerprint, versions, deleted, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			batch       = excluded.batch,
			size        = excluded.size,
			checksums   = excluded.checksums,
			uris        = excluded.uris,
			fingerprint = excluded.fingerprint,
			versions    = excluded.versions,
			deleted     = excluded.deleted,
			updated_at  = excluded.updated_at
	`, row.Name, row.Batch, row.Size, string(sumsJSON), string(urisJSON), row.Fingerprint,
		row.Versions, row.Deleted, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert artifact: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, row.Name, row.Batch); err != nil {
		return err
	}

	_, _ = tx.Exec(`DELETE FROM versions WHERE name = ?`, row.Name)
	if len(versions) > 0 {
		stmt, err := tx.Prepare(`INSERT OR REPLACE INTO versions (name, position, batch, root, uri, size, checksums) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare version insert: %w", err)
		}
		defer stmt.Close()
		for _, v := range versions {
			vs, _ := json.Marshal(v.Checksums)
			if _, err := stmt.Exec(row.Name, v.Position, v.Batch, v.Root, v.URI, v.Size, string(vs)); err != nil {
				return fmt.Errorf("index: insert version: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteArtifact removes an artifact, its FTS entry and its versions.
func (db *DB) DeleteArtifact(name string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, name)
	_, _ = tx.Exec(`DELETE FROM versions WHERE name = ?`, name)
	_, _ = tx.Exec(`DELETE FROM artifacts WHERE name = ?`, name)

	return tx.Commit()
}

const artifactColumns = `name, batch, size, checksums, uris, fingerprint, versions, deleted, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanArtifact(s scanner) (ArtifactRow, error) {
	var (
		r          ArtifactRow
		sums, uris string
	)
	if err := s.Scan(&r.Name, &r.Batch, &r.Size, &sums, &uris, &r.Fingerprint, &r.Versions, &r.Deleted, &r.UpdatedAt); err != nil {
		return r, err
	}
	_ = json.Unmarshal([]byte(sums), &r.Checksums)
	_ = json.Unmarshal([]byte(uris), &r.URIs)
	return r, nil
}

// GetArtifact returns the current version of name.
func (db *DB) GetArtifact(name string) (*ArtifactRow, error) {
	r, err := scanArtifact(db.conn.QueryRow(`SELECT `+artifactColumns+` FROM artifacts WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: artifact %s: %w", name, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get artifact: %w", err)
	}
	return &r, nil
}

// ListArtifacts returns a page of artifacts in name order and the total count.
func (db *DB) ListArtifacts(limit, offset int) ([]ArtifactRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM artifacts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count artifacts: %w", err)
	}
	rows, err := db.conn.Query(`SELECT `+artifactColumns+` FROM artifacts ORDER BY name LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list artifacts: %w", err)
	}
	defer rows.Close()

	var out []ArtifactRow
	for rows.Next() {
		r, err := scanArtifact(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// History returns every version of name, latest first.
func (db *DB) History(name string) ([]VersionRow, error) {
	rows, err := db.conn.Query(`
		SELECT name, position, batch, root, uri, size, checksums
		FROM versions
		WHERE name = ?
		ORDER BY position, root
	`, name)
	if err != nil {
		return nil, fmt.Errorf("index: history: %w", err)
	}
	defer rows.Close()

	var out []VersionRow
	for rows.Next() {
		var (
			v    VersionRow
			sums string
		)
		if err := rows.Scan(&v.Name, &v.Position, &v.Batch, &v.Root, &v.URI, &v.Size, &sums); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(sums), &v.Checksums)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("index: history %s: %w", name, apperr.ErrNotFound)
	}
	return out, nil
}

// AllFingerprints returns the stored fingerprint of every indexed artifact.
func (db *DB) AllFingerprints() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT name, fingerprint FROM artifacts`)
	if err != nil {
		return nil, fmt.Errorf("index: all fingerprints: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var n, fp string
		if err := rows.Scan(&n, &fp); err != nil {
			return nil, err
		}
		out[n] = fp
	}
	return out, rows.Err()
}

// ReplaceFailures stores the failures of the latest check, replacing any
// previous ones. An empty list clears them.
func (db *DB) ReplaceFailures(label string, failures []apperr.Failure) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM failures`); err != nil {
		return fmt.Errorf("index: clear failures: %w", err)
	}
	if len(failures) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO failures (label, message, category, root, batch, artifact, detail) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare failure insert: %w", err)
		}
		defer stmt.Close()
		for _, f := range failures {
			if _, err := stmt.Exec(label, f.Message, string(f.Category), f.Root, f.Batch, f.Artifact, f.Detail); err != nil {
				return fmt.Errorf("index: insert failure: %w", err)
			}
		}
	}
	return tx.Commit()
}

// Failures returns the stored failures in insertion order with their label.
func (db *DB) Failures() (string, []apperr.Failure, error) {
	rows, err := db.conn.Query(`SELECT label, message, category, root, batch, artifact, detail FROM failures ORDER BY id`)
	if err != nil {
		return "", nil, fmt.Errorf("index: failures: %w", err)
	}
	defer rows.Close()

	var (
		label string
		out   []apperr.Failure
	)
	for rows.Next() {
		var (
			f   apperr.Failure
			cat string
		)
		if err := rows.Scan(&label, &f.Message, &cat, &f.Root, &f.Batch, &f.Artifact, &f.Detail); err != nil {
			return "", nil, err
		}
		f.Category = apperr.Category(cat)
		out = append(out, f)
	}
	return label, out, rows.Err()
}
