package netengine

import (
	"bytes"
	"context"
	"crypto/rand"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nekolauncher/internal/pool"
)

func TestPlanSegmentsAuto52MiB(t *testing.T) {
	const size = 52 * 1024 * 1024
	plans := planSegments(size, Auto, 0, t.TempDir())

	require.Len(t, plans, 11)
	for i, p := range plans {
		assert.Equal(t, i, p.index)
		if i < 10 {
			assert.EqualValues(t, defaultSegmentBytes, p.end-p.start+1)
		}
	}
	assert.EqualValues(t, size-1, plans[len(plans)-1].end)
}

func TestPlanSegmentsAutoSmallFile(t *testing.T) {
	const size = 10 * 1024 * 1024 // <= 50 MiB -> 100 equal segments
	plans := planSegments(size, Auto, 0, t.TempDir())
	assert.Len(t, plans, defaultQuantity)
	assert.EqualValues(t, size-1, plans[len(plans)-1].end)
}

func TestMultiThreadedDownloadReconstructsFile(t *testing.T) {
	payload := make([]byte, 2*1024*1024+777)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "payload.bin", time.Time{}, bytes.NewReader(payload))
	}))
	defer srv.Close()

	p := pool.New(slog.Default(), 4)
	defer p.Stop(true)

	dest := filepath.Join(t.TempDir(), "reconstructed.bin")
	err = MultiThreadedDownload(context.Background(), p, MultiDownloadConfig{
		URL:        srv.URL,
		Dest:       dest,
		Approach:   Quantity,
		Param:      8,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".part")
	}
}

func TestMultiThreadedDownloadFallsBackWithoutContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Transfer-Encoding", "chunked")
		w.Write([]byte("streamed without a known length"))
	}))
	defer srv.Close()

	p := pool.New(slog.Default(), 2)
	defer p.Stop(true)

	dest := filepath.Join(t.TempDir(), "out.bin")
	err := MultiThreadedDownload(context.Background(), p, MultiDownloadConfig{
		URL:  srv.URL,
		Dest: dest,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "streamed without a known length", string(data))
}
