package services

import (
  "bytes"
  "context"
  "fmt"
  "os"
  "os/exec"
  "regexp"
  "strings"
  "time"

  "github.com/smartchat-org/smartchat-backend/internal/logger"
  "github.com/smartchat-org/smartchat-backend/internal/utils"
)

const (
  defaultPdfExtractionTimeout = 20 * time.Second
  defaultPdfMaxExcerptLength  = 3500
)

// PdfExcerpt is normalized extracted text, flagged when it was cut to fit.
type PdfExcerpt struct {
  Text      string
  Truncated bool
}

// PdfTextService extracts a bounded text excerpt from a PDF on local disk.
// Every failure is returned as an error for the caller to log and swallow;
// extraction never gets to abort reply generation.
type PdfTextService interface {
  ExtractExcerpt(ctx context.Context, path string) (*PdfExcerpt, error)
}

type pdfTextService struct {
  log        *logger.Logger
  binary     string
  timeout    time.Duration
  maxExcerpt int
}

func NewPdfTextService(log *logger.Logger) (PdfTextService, error) {
  serviceLog := log.With("service", "PdfTextService")
  binary := utils.GetEnv("PDF_TO_TEXT_BINARY", "pdftotext", serviceLog)
  timeoutSeconds := utils.GetEnvAsInt("PDF_TO_TEXT_TIMEOUT", int(defaultPdfExtractionTimeout/time.Second), serviceLog)
  if timeoutSeconds <= 0 {
    timeoutSeconds = int(defaultPdfExtractionTimeout / time.Second)
  }
  maxExcerpt := utils.GetEnvAsInt("PDF_TO_TEXT_MAX_EXCERPT_LENGTH", defaultPdfMaxExcerptLength, serviceLog)
  if maxExcerpt <= 0 {
    maxExcerpt = defaultPdfMaxExcerptLength
  }
  return &pdfTextService{
    log:        serviceLog,
    binary:     binary,
    timeout:    time.Duration(timeoutSeconds) * time.Second,
    maxExcerpt: maxExcerpt,
  }, nil
}

func (ps *pdfTextService) ExtractExcerpt(ctx context.Context, path string) (*PdfExcerpt, error) {
  if _, err := os.Stat(path); err != nil {
    return nil, fmt.Errorf("pdf not readable at %s: %w", path, err)
  }

  ctx, cancel := context.WithTimeout(ctx, ps.timeout)
  defer cancel()

  // "-" sends the extracted text to stdout.
  cmd := exec.CommandContext(ctx, ps.binary, "-q", path, "-")
  var stdout, stderr bytes.Buffer
  cmd.Stdout = &stdout
  cmd.Stderr = &stderr
  if err := cmd.Run(); err != nil {
    if ctx.Err() == context.DeadlineExceeded {
      return nil, fmt.Errorf("pdf extraction timed out after %s", ps.timeout)
    }
    return nil, fmt.Errorf("pdf extraction failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
  }

  normalized := normalizePdfText(stdout.String())
  if normalized == "" {
    return nil, nil
  }
  text, truncated := truncateExcerpt(normalized, ps.maxExcerpt)
  return &PdfExcerpt{Text: text, Truncated: truncated}, nil
}

var (
  spaceRunRe   = regexp.MustCompile(`[ \t]+`)
  newlineRunRe = regexp.MustCompile(`\n{3,}`)
)

// normalizePdfText collapses runs of spaces/tabs, caps blank lines at one,
// and trims the result.
func normalizePdfText(raw string) string {
  s := strings.ReplaceAll(raw, "\r\n", "\n")
  s = strings.ReplaceAll(s, "\r", "\n")
  s = spaceRunRe.ReplaceAllString(s, " ")
  s = newlineRunRe.ReplaceAllString(s, "\n\n")
  return strings.TrimSpace(s)
}

func truncateExcerpt(s string, limit int) (string, bool) {
  runes := []rune(s)
  if len(runes) <= limit {
    return s, false
  }
  return string(runes[:limit]) + "...", true
}
