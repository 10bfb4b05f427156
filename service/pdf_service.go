package service

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tieubaoca/edu-assistant/types"
	"go.uber.org/zap"
)

// TextExtractor turns uploaded bytes into ordered pages of text.
type TextExtractor interface {
	Extract(ctx context.Context, filename string, data []byte) ([]string, error)
}

// CommandRunner executes an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out.Bytes(), nil
}

var pagesPattern = regexp.MustCompile(`Pages:\s+(\d+)`)

// PDFExtractor extracts PDF pages with pdftotext, falling back to
// pdftoppm + tesseract OCR for pages without a text layer. Plain text and
// markdown uploads are returned as a single page.
type PDFExtractor struct {
	runner       CommandRunner
	ocrLanguages string
	logger       *zap.Logger
}

type PDFExtractorOption func(*PDFExtractor)

func WithCommandRunner(r CommandRunner) PDFExtractorOption {
	return func(e *PDFExtractor) { e.runner = r }
}

func WithOCRLanguages(langs string) PDFExtractorOption {
	return func(e *PDFExtractor) { e.ocrLanguages = langs }
}

func NewPDFExtractor(logger *zap.Logger, opts ...PDFExtractorOption) *PDFExtractor {
	e := &PDFExtractor{
		runner:       execRunner{},
		ocrLanguages: "eng",
		logger:       logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *PDFExtractor) Extract(ctx context.Context, filename string, data []byte) ([]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md":
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%w: %s is not valid UTF-8", types.ErrExtractionFailed, filename)
		}
		return []string{cleanText(string(data))}, nil
	}

	tempDir, err := os.MkdirTemp("", "upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	pdfPath := filepath.Join(tempDir, "document.pdf")
	if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}

	totalPages, err := e.numPages(ctx, pdfPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrExtractionFailed, err)
	}
	e.logger.Debug("extracting pdf", zap.String("filename", filename), zap.Int("pages", totalPages))

	pages := make([]string, 0, totalPages)
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		text, err := e.extractPage(ctx, tempDir, pdfPath, pageNum)
		if err != nil {
			e.logger.Warn("failed to extract page",
				zap.String("filename", filename),
				zap.Int("page", pageNum),
				zap.Error(err))
			continue
		}
		pages = append(pages, text)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no text found in %s", types.ErrExtractionFailed, filename)
	}
	return pages, nil
}

func (e *PDFExtractor) extractPage(ctx context.Context, tempDir, pdfPath string, pageNum int) (string, error) {
	text, err := e.extractWithPdftotext(ctx, pdfPath, pageNum)
	if err == nil {
		return text, nil
	}
	text, ocrErr := e.extractWithTesseract(ctx, tempDir, pdfPath, pageNum)
	if ocrErr != nil {
		return "", fmt.Errorf("pdftotext: %v; ocr: %w", err, ocrErr)
	}
	return text, nil
}

func (e *PDFExtractor) extractWithPdftotext(ctx context.Context, pdfPath string, pageNum int) (string, error) {
	page := strconv.Itoa(pageNum)
	out, err := e.runner.Run(ctx, "pdftotext", "-f", page, "-l", page, "-enc", "UTF-8", "-nopgbrk", pdfPath, "-")
	if err != nil {
		return "", err
	}
	if text := cleanText(string(out)); text != "" {
		return text, nil
	}
	return "", fmt.Errorf("got nothing at page %d", pageNum)
}

func (e *PDFExtractor) extractWithTesseract(ctx context.Context, tempDir, pdfPath string, pageNum int) (string, error) {
	page := strconv.Itoa(pageNum)
	prefix := filepath.Join(tempDir, "page-"+page)
	if _, err := e.runner.Run(ctx, "pdftoppm", "-f", page, "-l", page, "-png", pdfPath, prefix); err != nil {
		return "", fmt.Errorf("failed to convert page %d to image: %w", pageNum, err)
	}
	images, err := filepath.Glob(prefix + "*.png")
	if err != nil || len(images) == 0 {
		return "", fmt.Errorf("no image rendered for page %d", pageNum)
	}
	defer func() {
		for _, img := range images {
			os.Remove(img)
		}
	}()

	out, err := e.runner.Run(ctx, "tesseract", images[0], "stdout", "-l", e.ocrLanguages, "--oem", "3", "--psm", "3")
	if err != nil {
		return "", fmt.Errorf("failed to run tesseract: %w", err)
	}
	if text := cleanText(string(out)); text != "" {
		return text, nil
	}
	return "", fmt.Errorf("got nothing at page %d", pageNum)
}

// numPages reads the page count reported by pdfinfo.
func (e *PDFExtractor) numPages(ctx context.Context, pdfPath string) (int, error) {
	out, err := e.runner.Run(ctx, "pdfinfo", pdfPath)
	if err != nil {
		return 0, fmt.Errorf("error running pdfinfo: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if matches := pagesPattern.FindStringSubmatch(scanner.Text()); len(matches) == 2 {
			n, err := strconv.Atoi(matches[1])
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("invalid page count %q", matches[1])
			}
			return n, nil
		}
	}
	return 0, fmt.Errorf("unable to determine page count from pdfinfo")
}

var textReplacer = strings.NewReplacer(
	"\u0000", "",
	"\ufffd", "",
	"\u001b", "",
	"\r", "",
	"\f", "\n",
	"\uf8ff", "",
	"\u2021", "",
	"\u2020", "",
)

func cleanText(text string) string {
	return strings.TrimSpace(textReplacer.Replace(text))
}
