package utils

import (
	"errors"
	"testing"
)

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		limit  int
		expect string
	}{
		{
			name:   "returns empty when limit non-positive",
			input:  "hello world",
			limit:  0,
			expect: "",
		},
		{
			name:   "shorter than limit",
			input:  "hello",
			limit:  10,
			expect: "hello",
		},
		{
			name:   "truncates and adds ellipsis",
			input:  "hello world",
			limit:  5,
			expect: "hello...",
		},
		{
			name:   "counts runes not bytes",
			input:  "Nguyễn Văn A",
			limit:  6,
			expect: "Nguyễn...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TruncateForLog(tt.input, tt.limit); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestShortError(t *testing.T) {
	t.Parallel()

	if got := ShortError(nil, 10); got != "" {
		t.Fatalf("expected empty string for nil error, got %q", got)
	}

	err := errors.New("read file:\n\tpermission   denied")
	if got := ShortError(err, 100); got != "read file: permission denied" {
		t.Fatalf("unexpected short error: %q", got)
	}

	if got := ShortError(err, 4); got != "read..." {
		t.Fatalf("unexpected truncated error: %q", got)
	}
}

func TestBaseName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"cv.pdf":                  "cv.pdf",
		"../../etc/passwd":        "passwd",
		`C:\Users\me\resume.docx`: "resume.docx",
		"  ":                      "",
		"bad\x00name.txt":         "badname.txt",
	}

	for input, expect := range tests {
		if got := BaseName(input); got != expect {
			t.Fatalf("BaseName(%q): expected %q, got %q", input, expect, got)
		}
	}
}
