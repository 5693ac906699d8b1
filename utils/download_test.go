package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"><rect width="10" height="10" fill="red"/></svg>`

func TestUtils_ShouldDownloadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Write([]byte(sampleSVG))
	}))
	defer srv.Close()

	data, err := Download(context.Background(), srv.Client(), srv.URL+"/anim.svg", 0)
	require.NoError(t, err)
	assert.Equal(t, sampleSVG, string(data))
}

func TestUtils_ShouldFailOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := Download(context.Background(), srv.Client(), srv.URL, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestUtils_ShouldRejectOversizedDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 128)))
	}))
	defer srv.Close()

	_, err := Download(context.Background(), srv.Client(), srv.URL, 64)
	require.Error(t, err)
}

func TestUtils_ShouldBeValidUrl(t *testing.T) {
	assert.True(t, IsValidUrl("https://github.com/esimov/svgif/"))
	assert.False(t, IsValidUrl("testdata/anim.svg"))
	assert.False(t, IsValidUrl("ftp://example.com/a.svg"))
	assert.True(t, IsDataUrl("data:image/svg+xml;base64,AAAA"))
}

func TestUtils_ShouldDetectSvgContentType(t *testing.T) {
	assert.Equal(t, "image/svg+xml", DetectContentType([]byte(sampleSVG)))
	assert.Equal(t, "image/svg+xml", DetectContentType([]byte(`<?xml version="1.0"?>`+"\n"+sampleSVG)))
	assert.NotEqual(t, "image/svg+xml", DetectContentType([]byte("\x89PNG\r\n\x1a\n")))
}
