package transport

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relaychat/relay/config"
)

func okMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func TestStartHTTPServerRejectsMissingParams(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()
	cfg := &config.Config{ListenAddr: "127.0.0.1:0"}

	_, _, err := StartHTTPServer(ctx, nil, cfg, okMux())
	assert.Error(t, err)

	_, _, err = StartHTTPServer(ctx, logger, nil, okMux())
	assert.Error(t, err)

	_, _, err = StartHTTPServer(ctx, logger, cfg, nil)
	assert.Error(t, err)
}

func TestStartHTTPServerManualSSLRequiresCertAndKey(t *testing.T) {
	logger := zap.NewNop()

	cfg := &config.Config{ListenAddr: "127.0.0.1:0"}
	cfg.SSL.Enabled = true
	cfg.SSL.Mode = "manual"

	_, _, err := StartHTTPServer(context.Background(), logger, cfg, okMux())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cert_file")

	cfg.SSL.CertFile = "/tmp/cert.pem"
	_, _, err = StartHTTPServer(context.Background(), logger, cfg, okMux())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_file")
}

func TestStartHTTPServerACMERequiresDomains(t *testing.T) {
	logger := zap.NewNop()

	cfg := &config.Config{ListenAddr: "127.0.0.1:0"}
	cfg.SSL.Enabled = true
	cfg.SSL.Mode = "acme"

	_, _, err := StartHTTPServer(context.Background(), logger, cfg, okMux())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acme_domains")
}

func TestStartAndShutdownHTTPServer(t *testing.T) {
	logger := zap.NewNop()
	cfg := &config.Config{ListenAddr: "127.0.0.1:0"}

	server, errChan, err := StartHTTPServer(context.Background(), logger, cfg, okMux())
	require.NoError(t, err)
	require.NotNil(t, server)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ShutdownHTTPServer(shutdownCtx, logger, server)

	select {
	case listenerErr, ok := <-errChan:
		if ok {
			assert.NoError(t, listenerErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener goroutine did not exit after shutdown")
	}
}
