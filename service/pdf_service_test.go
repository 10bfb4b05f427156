package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/edu-assistant/types"
	"go.uber.org/zap/zaptest"
)

// fakeRunner is a test double for CommandRunner keyed by command name.
type fakeRunner struct {
	pdfinfo    []byte
	pdfinfoErr error
	pages      map[string]string
	calls      []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, name)
	switch name {
	case "pdfinfo":
		return f.pdfinfo, f.pdfinfoErr
	case "pdftotext":
		return []byte(f.pages[args[1]]), nil
	case "pdftoppm":
		return nil, errors.New("pdftoppm not installed")
	}
	return nil, errors.New("unexpected command " + name)
}

func TestPDFExtractor_ExtractsPages(t *testing.T) {
	runner := &fakeRunner{
		pdfinfo: []byte("Title: test\nPages:          3\nEncrypted: no\n"),
		pages:   map[string]string{"1": "first page\r", "2": "", "3": "  third\fpage "},
	}
	e := NewPDFExtractor(zaptest.NewLogger(t), WithCommandRunner(runner))

	pages, err := e.Extract(context.Background(), "book.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first page", "third\npage"}, pages)
	assert.Contains(t, runner.calls, "pdftoppm")
}

func TestPDFExtractor_CorruptDocument(t *testing.T) {
	runner := &fakeRunner{pdfinfoErr: errors.New("exit status 1")}
	e := NewPDFExtractor(zaptest.NewLogger(t), WithCommandRunner(runner))

	_, err := e.Extract(context.Background(), "broken.pdf", []byte("garbage"))
	assert.ErrorIs(t, err, types.ErrExtractionFailed)
}

func TestPDFExtractor_NoTextAnywhere(t *testing.T) {
	runner := &fakeRunner{pdfinfo: []byte("Pages: 1\n"), pages: map[string]string{}}
	e := NewPDFExtractor(zaptest.NewLogger(t), WithCommandRunner(runner))

	_, err := e.Extract(context.Background(), "scan.pdf", []byte("%PDF"))
	assert.ErrorIs(t, err, types.ErrExtractionFailed)
}

func TestPDFExtractor_PlainText(t *testing.T) {
	runner := &fakeRunner{}
	e := NewPDFExtractor(zaptest.NewLogger(t), WithCommandRunner(runner))

	pages, err := e.Extract(context.Background(), "notes.md", []byte("  # Notes\nhello  "))
	require.NoError(t, err)
	assert.Equal(t, []string{"# Notes\nhello"}, pages)
	assert.Empty(t, runner.calls)

	_, err = e.Extract(context.Background(), "bad.txt", []byte{0xff, 0xfe})
	assert.ErrorIs(t, err, types.ErrExtractionFailed)
}
