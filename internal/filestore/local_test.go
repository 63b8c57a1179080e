package filestore

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := New("local", map[string]interface{}{"dir": t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	content := "audit note"
	require.NoError(t, store.Save(ctx, "index-audit/faq/faq-1/1.json", strings.NewReader(content), int64(len(content))))

	r, err := store.Open(ctx, "index-audit/faq/faq-1/1.json")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, content, string(data))
}

func TestLocalStoreTraversalKeyStaysInsideDir(t *testing.T) {
	dir := t.TempDir()
	store, err := New("local", map[string]interface{}{"dir": dir})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "../../escape.txt", strings.NewReader("x"), 1))
	require.NoFileExists(t, filepath.Join(filepath.Dir(filepath.Dir(dir)), "escape.txt"))
	require.FileExists(t, filepath.Join(dir, "escape.txt"))
}

func TestNewUnknownType(t *testing.T) {
	_, err := New("ftp", nil)
	require.Error(t, err)
}

func TestNoneStoreDiscards(t *testing.T) {
	store, err := New("none", nil)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), "k", strings.NewReader("x"), 1))
	_, err = store.Open(context.Background(), "k")
	require.Error(t, err)
}
