package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/spentsync/internal/parser"
)

// Scanner lists the input files left in the downloads directory by the fetch
// tooling. Only the top level is scanned; subdirectories are ignored.
type Scanner struct {
	rootDir string
	now     func() time.Time
}

// New creates a new scanner for the given downloads directory
func New(rootDir string) *Scanner {
	return &Scanner{rootDir: rootDir, now: time.Now}
}

// ScanResult represents a found file with metadata
type ScanResult struct {
	Path     string
	Kind     parser.Kind
	Metadata *parser.Metadata
}

// Scan returns statement files, then CSV exports, then raw emails, each group
// in lexical file name order.
func (s *Scanner) Scan() ([]ScanResult, error) {
	rootDir := s.expandHome(s.rootDir)

	entries, err := os.ReadDir(rootDir)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	var results []ScanResult
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		kind, ok := KindOf(entry.Name())
		if !ok {
			continue
		}

		path := filepath.Join(rootDir, entry.Name())
		meta, err := parser.NewMetadata(path, s.now())
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}

		results = append(results, ScanResult{
			Path:     path,
			Kind:     kind,
			Metadata: meta,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return kindRank(results[i].Kind) < kindRank(results[j].Kind)
	})
	return results, nil
}

// KindOf classifies a file name by the download naming conventions:
// *.ofx and *.qfx statements, *.csv exports, email_raw_<id>.txt messages.
func KindOf(name string) (parser.Kind, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ofx", ".qfx":
		return parser.KindStatement, true
	case ".csv":
		return parser.KindCSV, true
	}
	if parser.MessageIDFromName(name) != "" {
		return parser.KindEmail, true
	}
	return "", false
}

func kindRank(k parser.Kind) int {
	for i, kind := range parser.Kinds {
		if kind == k {
			return i
		}
	}
	return len(parser.Kinds)
}

// expandHome expands ~ to home directory
func (s *Scanner) expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
