package mdserver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderAlertRewrite(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render([]byte("> [!WARNING]\n> be careful\n"))
	require.NoError(t, err)

	assert.Contains(t, out.HTML, `<div class="markdown-alert markdown-alert-warning">`)
	assert.NotContains(t, out.HTML, "[!WARNING]")
}

func TestRenderAlertKinds(t *testing.T) {
	for _, kind := range []string{"NOTE", "TIP", "IMPORTANT", "WARNING", "CAUTION"} {
		t.Run(kind, func(t *testing.T) {
			r := NewRenderer()
			out, err := r.Render([]byte("> [!" + kind + "]\n> body text\n"))
			require.NoError(t, err)
			assert.Contains(t, out.HTML, "markdown-alert-"+strings.ToLower(kind))
		})
	}
}

func TestRenderPlainBlockquoteUnaffected(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render([]byte("> just a quote\n"))
	require.NoError(t, err)
	assert.Contains(t, out.HTML, "<blockquote>")
	assert.NotContains(t, out.HTML, "markdown-alert")
}

func TestRewriteImageSrcs(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render([]byte("![alt](images/diagram.png)\n"))
	require.NoError(t, err)
	assert.Contains(t, out.HTML, `src="/files/images%2Fdiagram.png"`)
}

func TestRewriteImageSrcsLeavesAbsoluteURLs(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render([]byte("![alt](https://example.com/x.png)\n"))
	require.NoError(t, err)
	assert.Contains(t, out.HTML, `src="https://example.com/x.png"`)
}

func TestLineMap(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render([]byte("# heading\n\nsecond paragraph\n"))
	require.NoError(t, err)
	require.Len(t, out.LineMap, 2)
	assert.Equal(t, 1, out.LineMap[0])
	assert.Equal(t, 3, out.LineMap[1])
}

func TestComputeStats(t *testing.T) {
	stats := computeStats([]byte("one two three\nfour\n"))
	assert.Equal(t, 3, stats.Lines)
	assert.Equal(t, 4, stats.Words)
	assert.Greater(t, stats.CharsNoSpaces, 0)
	assert.Greater(t, stats.CharsWithSpaces, stats.CharsNoSpaces)
}
