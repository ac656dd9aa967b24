package tool

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFileTool(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("remember the milk"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "deep.txt"), []byte("nested"), 0o600))

	rf := NewReadFileTool(root)

	result, err := rf.Execute(context.Background(), map[string]any{"path": "notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, "remember the milk", result)

	result, err = rf.Execute(context.Background(), map[string]any{"path": "sub/deep.txt"})
	require.NoError(t, err)
	assert.Equal(t, "nested", result)
}

func TestReadFileTool_EscapeAttempts(t *testing.T) {
	root := t.TempDir()
	rf := NewReadFileTool(root)

	forbidden := []string{
		"../outside.txt",
		"../../etc/passwd",
		"sub/../../outside.txt",
	}
	for _, path := range forbidden {
		_, err := rf.Execute(context.Background(), map[string]any{"path": path})
		assert.Error(t, err, "path %q must not resolve outside the root", path)
	}

	_, err := rf.Execute(context.Background(), map[string]any{"path": "missing.txt"})
	assert.Error(t, err)
}

func TestWebhookTool(t *testing.T) {
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	wh := NewWebhookTool([]string{srv.URL})

	result, err := wh.Execute(context.Background(), map[string]any{
		"url":     srv.URL + "/hook",
		"payload": map[string]any{"event": "test"},
	})
	require.NoError(t, err)
	assert.Contains(t, result.(string), "status 200")
	assert.Contains(t, string(received), "test")
}

func TestWebhookTool_Allowlist(t *testing.T) {
	// No allowlist means every target is rejected.
	wh := NewWebhookTool(nil)
	_, err := wh.Execute(context.Background(), map[string]any{"url": "https://evil.example.com/"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allowlist")

	wh = NewWebhookTool([]string{"https://hooks.example.com/"})
	_, err = wh.Execute(context.Background(), map[string]any{"url": "https://other.example.com/hook"})
	assert.Error(t, err)
}

func TestWebhookTool_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	wh := NewWebhookTool([]string{srv.URL})
	_, err := wh.Execute(context.Background(), map[string]any{"url": srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestTimeTool(t *testing.T) {
	tt := NewTimeTool()

	result, err := tt.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)

	text, ok := result.(string)
	require.True(t, ok)
	assert.Contains(t, text, "It's ")
	assert.Contains(t, text, time.Now().Weekday().String())
}

func TestWebSearchTool_EmptyQuery(t *testing.T) {
	ws := NewWebSearchTool()

	_, err := ws.Execute(context.Background(), map[string]any{"query": ""})
	require.Error(t, err)

	// Schema requires the query argument outright.
	_, err = ws.Execute(context.Background(), map[string]any{})
	toolErr, ok := err.(*ToolError)
	require.True(t, ok)
	assert.Equal(t, CodeValidation, toolErr.Code)
}
