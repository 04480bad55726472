// Package manifest parses the md5sum-style manifest stored in every batch.
package manifest

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/starford/pfdl/internal/apperr"
)

// FileName is the reserved manifest entry name.
const FileName = "md5sums.txt"

// Parse reads md5sum output into a filename to checksum map. The manifest's
// own line, if present, is skipped.
func Parse(content []byte) (map[string]string, error) {
	out := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, `\`) {
			return nil, fmt.Errorf("manifest: line %d: %w", lineNo, apperr.ErrEscapedManifest)
		}
		if len(line) < 35 || line[32] != ' ' || (line[33] != ' ' && line[33] != '*') {
			return nil, fmt.Errorf("manifest: line %d: %w", lineNo, apperr.ErrMalformedManifest)
		}
		sum := line[:32]
		if !isHex(sum) {
			return nil, fmt.Errorf("manifest: line %d: checksum %q: %w", lineNo, sum, apperr.ErrMalformedManifest)
		}
		name := line[34:]
		if name == FileName {
			continue
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("manifest: line %d: duplicate entry %q: %w", lineNo, name, apperr.ErrMalformedManifest)
		}
		out[name] = strings.ToLower(sum)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("manifest: scan: %w", err)
	}
	return out, nil
}

// Equal reports whether two manifests list the same names with the same checksums.
func Equal(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
