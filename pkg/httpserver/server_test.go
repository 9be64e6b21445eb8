package httpserver_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planorahq/planora/pkg/httpserver"
	"github.com/planorahq/planora/pkg/logger"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestServerRunAndShutdown(t *testing.T) {
	addr := freeAddr(t)

	srv := httpserver.New(
		httpserver.WithAddr(addr),
		httpserver.WithShutdownTimeout(time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}))
	}()

	// Wait for the listener to come up.
	var resp *http.Response
	var err error
	require.Eventually(t, func() bool {
		resp, err = http.Get(fmt.Sprintf("http://%s/", addr))
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, "ok", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestHealthCheckHandler(t *testing.T) {
	t.Parallel()

	log := logger.New(logger.WithOutput(io.Discard))

	t.Run("liveness", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		httpserver.HealthCheckHandler(log)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ALIVE", rec.Body.String())
	})

	t.Run("readiness ok", func(t *testing.T) {
		t.Parallel()

		ok := func(context.Context) error { return nil }
		rec := httptest.NewRecorder()
		httpserver.HealthCheckHandler(log, ok, ok)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "READY", rec.Body.String())
	})

	t.Run("readiness failure", func(t *testing.T) {
		t.Parallel()

		failing := func(context.Context) error { return errors.New("down") }
		rec := httptest.NewRecorder()
		httpserver.HealthCheckHandler(log, failing)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "NOT_READY", rec.Body.String())
	})
}
