package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingServer(t *testing.T, body string, hits *int32) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPGet(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	body, err := HTTPGet(
		context.Background(),
		server.URL,
		map[string]string{"x-api-key": "sekrit"},
		GetOptions{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), body)
	assert.Equal(t, "sekrit", gotKey)
}

func TestHTTPGetMaxSize(t *testing.T) {
	var hits int32
	server := countingServer(t, "0123456789", &hits)

	body, err := HTTPGet(context.Background(), server.URL, nil, GetOptions{MaxSize: 4})
	require.NoError(t, err)
	assert.Equal(t, []byte("0123"), body)
}

func TestHTTPGetBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := HTTPGet(context.Background(), server.URL, nil, GetOptions{})
	assert.Error(t, err)
}

func TestMemoryDownloaderCaches(t *testing.T) {
	ctx := context.Background()
	var hits int32
	server := countingServer(t, "payload", &hits)

	d := NewMemoryDownloader()
	opts := GetOptions{Cache: true, CacheTTL: time.Hour}

	for i := 0; i < 3; i++ {
		body, err := d.Get(ctx, server.URL, nil, opts)
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), body)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	// Cache disabled goes straight to the server
	_, err := d.Get(ctx, server.URL, nil, GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestMemoryDownloaderExpiry(t *testing.T) {
	ctx := context.Background()
	var hits int32
	server := countingServer(t, "payload", &hits)

	now := time.Now()
	d := NewMemoryDownloader()
	d.TimeNow = func() time.Time { return now }
	opts := GetOptions{Cache: true, CacheTTL: time.Minute}

	_, err := d.Get(ctx, server.URL, nil, opts)
	require.NoError(t, err)
	_, err = d.Get(ctx, server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	now = now.Add(2 * time.Minute)
	_, err = d.Get(ctx, server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFilesystemCaches(t *testing.T) {
	ctx := context.Background()
	var hits int32
	server := countingServer(t, "payload", &hits)

	path := filepath.Join(t.TempDir(), "cache.json")
	opts := GetOptions{Cache: true, CacheTTL: time.Hour}

	d, err := NewFilesystem(path)
	require.NoError(t, err)

	body, err := d.Get(ctx, server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), body)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	// The cache survives a restart
	d2, err := NewFilesystem(path)
	require.NoError(t, err)

	body, err = d2.Get(ctx, server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), body)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
