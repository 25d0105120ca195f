package services

import (
  "context"
  "strings"
  "testing"

  "github.com/smartchat-org/smartchat-backend/internal/testutil"
)

func TestNormalizePdfText(t *testing.T) {
  raw := "Invoice\t\t#42\r\nTotal:   100.00\r\n\n\n\n\nThanks  for  your   business\n"
  want := "Invoice #42\nTotal: 100.00\n\nThanks for your business"
  if got := normalizePdfText(raw); got != want {
    t.Fatalf("normalizePdfText = %q, want %q", got, want)
  }
}

func TestNormalizePdfTextEmpty(t *testing.T) {
  if got := normalizePdfText("  \n\t \r\n "); got != "" {
    t.Fatalf("whitespace-only input should normalize to empty, got %q", got)
  }
}

func TestTruncateExcerpt(t *testing.T) {
  short, truncated := truncateExcerpt("hello", 10)
  if short != "hello" || truncated {
    t.Fatalf("short input must pass through untouched: %q %v", short, truncated)
  }

  long, truncated := truncateExcerpt(strings.Repeat("a", 20), 10)
  if long != strings.Repeat("a", 10)+"..." || !truncated {
    t.Fatalf("long input not truncated correctly: %q %v", long, truncated)
  }

  // Cutting must not split a multi-byte rune.
  mixed, truncated := truncateExcerpt(strings.Repeat("é", 8), 5)
  if mixed != strings.Repeat("é", 5)+"..." || !truncated {
    t.Fatalf("rune-safe truncation broken: %q %v", mixed, truncated)
  }
}

func TestExtractExcerptMissingFile(t *testing.T) {
  svc, err := NewPdfTextService(testutil.NewTestLogger(t))
  if err != nil {
    t.Fatalf("NewPdfTextService failed: %v", err)
  }
  if _, err := svc.ExtractExcerpt(context.Background(), "/nonexistent/file.pdf"); err == nil {
    t.Fatalf("expected error for missing file")
  }
}
