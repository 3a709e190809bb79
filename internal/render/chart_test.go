package render

import (
	"bytes"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFrame(t *testing.T) Frame {
	t.Helper()
	times, values := ramp(40, 0.05)
	f, ok := Build(times, values, 5*time.Second, 5)
	require.True(t, ok)
	return f
}

func TestRenderChart(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderChart(&buf, sampleFrame(t)))

	html := buf.String()
	for _, tr := range traces {
		assert.Contains(t, html, tr.title)
	}
	assert.Contains(t, html, EChartsAssetsHost)
	assert.Contains(t, html, "samples=40")
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, sampleFrame(t)))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 0)
	assert.Greater(t, img.Bounds().Dy(), 0)
}

func TestWritePNG_EmptyFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, Frame{XMax: 1}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
}
