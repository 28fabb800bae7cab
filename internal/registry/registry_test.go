package registry

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rumor-ml/commons.systems/spentsync/internal/domain"
	"github.com/rumor-ml/commons.systems/spentsync/internal/parser"
)

// mockExtractor implements parser.Extractor for testing
type mockExtractor struct {
	name         string
	canParseFunc func(string, []byte) bool
}

func (m *mockExtractor) Name() string {
	return m.name
}

func (m *mockExtractor) Kind() parser.Kind {
	return parser.KindCSV
}

func (m *mockExtractor) CanParse(path string, header []byte) bool {
	if m.canParseFunc != nil {
		return m.canParseFunc(path, header)
	}
	return false
}

func (m *mockExtractor) Extract(ctx context.Context, r io.Reader, meta *parser.Metadata) ([]domain.Transaction, error) {
	return nil, nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	return path
}

func TestRegistry_New(t *testing.T) {
	reg := New(Options{})

	got := reg.ListExtractors()
	want := []string{"ofx", "csv-chase", "csv-usaa", "email"}
	if len(got) != len(want) {
		t.Fatalf("ListExtractors() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("extractor %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRegistry_Register(t *testing.T) {
	reg := New(Options{})

	if err := reg.Register(&mockExtractor{name: "csv-amex"}); err != nil {
		t.Fatalf("Failed to register extractor: %v", err)
	}
	names := reg.ListExtractors()
	if names[len(names)-1] != "csv-amex" {
		t.Errorf("Expected csv-amex last, got %v", names)
	}

	err := reg.Register(nil)
	if err == nil || !strings.Contains(err.Error(), "cannot register nil extractor") {
		t.Errorf("Expected nil extractor error, got: %v", err)
	}

	err = reg.Register(&mockExtractor{name: "ofx"})
	if err == nil || !strings.Contains(err.Error(), "already registered") {
		t.Errorf("Expected duplicate name error, got: %v", err)
	}
	if len(reg.ListExtractors()) != 5 {
		t.Errorf("Expected 5 extractors after duplicate rejection, got %d", len(reg.ListExtractors()))
	}
}

func TestRegistry_FindExtractor(t *testing.T) {
	tests := []struct {
		name          string
		fileName      string
		fileContent   string
		expect        string
		expectError   bool
		errorContains string
	}{
		{
			name:        "statement file",
			fileName:    "Card1234--2024-01-31.ofx",
			fileContent: "OFXHEADER:100\nDATA:OFXSGML\n<OFX>",
			expect:      "ofx",
		},
		{
			name:        "chase export",
			fileName:    "Chase1234_Activity20240116.CSV",
			fileContent: "Transaction Date,Post Date,Description,Category,Type,Amount\n",
			expect:      "csv-chase",
		},
		{
			name:        "usaa export",
			fileName:    "bk_download.csv",
			fileContent: "Date,Description,Original Description,Category,Amount\n",
			expect:      "csv-usaa",
		},
		{
			name:        "raw email",
			fileName:    "email_raw_18c2f0a1b2.txt",
			fileContent: "RnJvbTogYUBjaGFzZS5jb20K",
			expect:      "email",
		},
		{
			name:        "empty csv file handled",
			fileName:    "empty.csv",
			fileContent: "",
			expect:      "csv-usaa",
		},
		{
			name:          "ofx extension without ofx header",
			fileName:      "Card1234--x.ofx",
			fileContent:   "not a statement",
			expectError:   true,
			errorContains: "no extractor found",
		},
		{
			name:          "unrelated file",
			fileName:      "notes.txt",
			fileContent:   "hello",
			expectError:   true,
			errorContains: "no extractor found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.fileName, tt.fileContent)

			e, err := New(Options{}).FindExtractor(path)
			if tt.expectError {
				if err == nil {
					t.Fatalf("Expected error, got extractor %q", e.Name())
				}
				if !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Expected error containing %q, got: %v", tt.errorContains, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FindExtractor() error = %v", err)
			}
			if e.Name() != tt.expect {
				t.Errorf("FindExtractor() = %q, want %q", e.Name(), tt.expect)
			}
		})
	}
}

func TestRegistry_FindExtractor_CustomAfterBuiltins(t *testing.T) {
	reg := New(Options{})
	if err := reg.Register(&mockExtractor{
		name:         "txt",
		canParseFunc: func(path string, header []byte) bool { return strings.HasSuffix(path, ".txt") },
	}); err != nil {
		t.Fatal(err)
	}

	e, err := reg.FindExtractor(writeFile(t, "notes.txt", "hello"))
	if err != nil {
		t.Fatalf("FindExtractor() error = %v", err)
	}
	if e.Name() != "txt" {
		t.Errorf("FindExtractor() = %q, want txt", e.Name())
	}
}

func TestRegistry_FindExtractor_MissingFile(t *testing.T) {
	_, err := New(Options{}).FindExtractor(filepath.Join(t.TempDir(), "missing.csv"))
	if err == nil || !strings.Contains(err.Error(), "failed to open file") {
		t.Errorf("Expected open error, got: %v", err)
	}
}
