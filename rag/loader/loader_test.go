package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/ragserve/types"
)

func TestRegistryRoutesByExtension(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	text, err := r.Extract(ctx, "notes.txt", []byte("plain text content"))
	require.NoError(t, err)
	assert.Equal(t, "plain text content", text)

	text, err = r.Extract(ctx, "README.md", []byte("# Title\n\nbody text here."))
	require.NoError(t, err)
	assert.Contains(t, text, "# Title")
}

func TestRegistryUnsupportedExtension(t *testing.T) {
	r := NewRegistry()

	_, err := r.Extract(context.Background(), "image.png", []byte{0x89, 0x50})
	require.Error(t, err)
	assert.Equal(t, types.ErrUnsupportedMedia, types.GetErrorCode(err))

	_, err = r.Extract(context.Background(), "noextension", []byte("data"))
	require.Error(t, err)
	assert.Equal(t, types.ErrUnsupportedMedia, types.GetErrorCode(err))
}

func TestRegistryInvalidUTF8(t *testing.T) {
	r := NewRegistry()
	_, err := r.Extract(context.Background(), "broken.txt", []byte{0xff, 0xfe, 0xfd})
	require.Error(t, err)
	assert.Equal(t, types.ErrDecodeFailed, types.GetErrorCode(err))
}

func TestRegistryEmptyContent(t *testing.T) {
	r := NewRegistry()
	_, err := r.Extract(context.Background(), "empty.txt", []byte("   \n\n  "))
	require.Error(t, err)
	assert.Equal(t, types.ErrEmptyContent, types.GetErrorCode(err))
}

func TestRegistryCustomExtractor(t *testing.T) {
	r := NewRegistry()
	r.Register(".csv", NewTextExtractor())

	text, err := r.Extract(context.Background(), "data.csv", []byte("a,b,c"))
	require.NoError(t, err)
	assert.Equal(t, "a,b,c", text)
	assert.Contains(t, r.SupportedTypes(), ".csv")
}

func TestPDFExtractorRejectsGarbage(t *testing.T) {
	e := NewPDFExtractor()
	_, err := e.Extract(context.Background(), "broken.pdf", []byte("not a pdf at all"))
	require.Error(t, err)
	assert.Equal(t, types.ErrDecodeFailed, types.GetErrorCode(err))
}

func TestNormalizeLineEndings(t *testing.T) {
	assert.Equal(t, "one two", Normalize("one\r\ntwo"))
	assert.Equal(t, "one two", Normalize("one\rtwo"))
}

func TestNormalizeCollapsesExcessNewlines(t *testing.T) {
	out := Normalize("para one ends.\n\n\n\n\nPara two starts")
	assert.Equal(t, "para one ends.\n\nPara two starts", out)
}

func TestNormalizeJoinsSoftLineBreaks(t *testing.T) {
	// 句中折行并入上一行。
	assert.Equal(t, "a line that wraps", Normalize("a line\nthat wraps"))
	// 句末换行保留。
	assert.Equal(t, "A sentence ends.\nanother begins", Normalize("A sentence ends.\nanother begins"))
	// 大写开头的下一行视为硬换行。
	assert.Equal(t, "one line\nNext line", Normalize("one line\nNext line"))
}

func TestNormalizeCollapsesSpaces(t *testing.T) {
	assert.Equal(t, "a b c", Normalize("a   b     c"))
}

func TestNormalizeBreaksBeforeHeadings(t *testing.T) {
	out := Normalize("intro text ends here. Chapter 2 begins the story")
	assert.Contains(t, out, "\n\nChapter 2 begins")

	// 文首标题前不补分隔。
	out = Normalize("Chapter 1 opens the book")
	assert.Equal(t, "Chapter 1 opens the book", out)
}

func TestNormalizeTrims(t *testing.T) {
	assert.Equal(t, "body", Normalize("  \n\nbody\n\n  "))
}
