package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
)

func newTestExporter(t *testing.T, handler http.Handler) *Exporter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	exporter, err := New(client, Config{Bucket: "test-bucket", Prefix: "snapshots"})
	require.NoError(t, err)
	exporter.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return exporter
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()
	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestExportUploadsSnapshot(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), `"id": "v1"`)
		assert.Contains(t, string(body), "snapshots/results-20240102T030405Z.json")
		fmt.Fprintln(w, `{"name": "snapshots/results-20240102T030405Z.json", "bucket": "test-bucket"}`)
	})
	exporter := newTestExporter(t, handler)

	uri, err := exporter.Export(context.Background(), []crawler.ResultEntry{{ID: "v1"}})
	require.NoError(t, err)
	assert.Equal(t, "gs://test-bucket/snapshots/results-20240102T030405Z.json", uri)
}

func TestExportReturnsServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	exporter := newTestExporter(t, handler)

	_, err := exporter.Export(context.Background(), nil)
	require.Error(t, err)
}
