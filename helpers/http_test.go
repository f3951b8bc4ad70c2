package helpers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchUTF8(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html><body>Hello, World!</body></html>"))
	}))
	defer server.Close()

	body, err := FetchUTF8(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Hello, World!")
}

func TestFetchUTF8NonUTF8(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.WriteHeader(http.StatusOK)
		// "Café" in ISO-8859-1
		w.Write([]byte{'C', 'a', 'f', 0xe9})
	}))
	defer server.Close()

	body, err := FetchUTF8(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "Café", string(body))
}

func TestFetchUTF8Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := FetchUTF8(context.Background(), server.URL)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 500")
}

func TestResolveDevToolsURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json/version", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Browser":"Chrome/120.0","webSocketDebuggerUrl":"ws://127.0.0.1:10020/devtools/browser/abc"}`))
	}))
	defer server.Close()

	ws, err := ResolveDevToolsURL(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:10020/devtools/browser/abc", ws)

	ws, err = ResolveDevToolsURL(context.Background(), strings.TrimPrefix(server.URL, "http://"))
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:10020/devtools/browser/abc", ws)

	ws, err = ResolveDevToolsURL(context.Background(), "ws://host:9222/devtools/browser/x")
	require.NoError(t, err)
	assert.Equal(t, "ws://host:9222/devtools/browser/x", ws)
}

func TestResolveDevToolsURLMissingSocket(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Browser":"Chrome/120.0"}`))
	}))
	defer server.Close()

	_, err := ResolveDevToolsURL(context.Background(), server.URL)
	assert.Error(t, err)
}
