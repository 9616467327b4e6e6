package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	text string
	err  error
	hits int
}

func (f *fakeExtractor) Extract(context.Context, []byte) (string, error) {
	f.hits++
	return f.text, f.err
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	in := "  Café   menu\t\tplan \r\n\fPage two\n\n\n\n\nend  "
	assert.Equal(t, "Café menu plan\n\nPage two\n\nend", Normalize(in))
	assert.Equal(t, "", Normalize(" \f \n "))
}

func TestChainReturnsFirstNonEmpty(t *testing.T) {
	t.Parallel()

	broken := &fakeExtractor{err: errors.New("boom")}
	empty := &fakeExtractor{}
	good := &fakeExtractor{text: "hello"}
	never := &fakeExtractor{text: "unused"}

	text, err := NewChain(nil, broken, empty, good, never).Extract(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, 0, never.hits)
}

func TestChainEmptyTextIsNotAFailure(t *testing.T) {
	t.Parallel()

	text, err := NewChain(nil, &fakeExtractor{err: ErrUnavailable}, &fakeExtractor{}).Extract(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestChainAllFailed(t *testing.T) {
	t.Parallel()

	first := errors.New("first")
	_, err := NewChain(nil, &fakeExtractor{err: first}, &fakeExtractor{err: errors.New("second")}).Extract(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, first)

	_, err = NewChain(nil).Extract(context.Background(), nil)
	assert.Error(t, err)
}

func TestNativeRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := NewNative().Extract(context.Background(), []byte("definitely not a pdf"))
	assert.Error(t, err)

	_, err = NewNative().Extract(context.Background(), []byte("%PDF-1.4\ntruncated"))
	assert.Error(t, err)
}

func TestPopplerMissingBinary(t *testing.T) {
	t.Parallel()

	_, err := NewPoppler("pdftotext-does-not-exist").Extract(context.Background(), []byte("%PDF"))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPopplerReadsStdout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stub")
	}

	script := filepath.Join(t.TempDir(), "fake-pdftotext")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncat\n"), 0o755))

	text, err := NewPoppler(script).Extract(context.Background(), []byte("Page  one\fPage two\n"))
	require.NoError(t, err)
	assert.Equal(t, "Page one\nPage two", text)
}

func TestPopplerPartialOutputOnFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stub")
	}

	script := filepath.Join(t.TempDir(), "flaky-pdftotext")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho 'first page'\necho 'Syntax Error' >&2\nexit 1\n"), 0o755))

	text, err := NewPoppler(script).Extract(context.Background(), []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "first page", text)

	failing := filepath.Join(t.TempDir(), "failing-pdftotext")
	require.NoError(t, os.WriteFile(failing, []byte("#!/bin/sh\necho 'May not be a PDF file' >&2\nexit 1\n"), 0o755))

	_, err = NewPoppler(failing).Extract(context.Background(), []byte("junk"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "May not be a PDF file")
}
