package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/relaychat/relay/config"
)

// StartHTTPServer starts the HTTP/HTTPS server for the relay based on the
// provided configuration. It returns the server instance and a channel that
// signals listener errors after startup. An immediate error is returned if
// setup fails before starting the listener.
func StartHTTPServer(ctx context.Context, logger *zap.Logger, cfg *config.Config, mux http.Handler) (*http.Server, <-chan error, error) {
	if logger == nil {
		return nil, nil, errors.New("logger cannot be nil")
	}
	if cfg == nil {
		return nil, nil, errors.New("config cannot be nil")
	}
	if mux == nil {
		return nil, nil, errors.New("http handler (mux) cannot be nil")
	}

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
		// No WriteTimeout: the chat endpoint holds its SSE stream open for
		// the whole multi-round relay.
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 90 * time.Second,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	var tlsConfig *tls.Config
	var certFile, keyFile string // only for manual mode
	isACME := false

	if cfg.SSL.Enabled {
		if cfg.SSL.Mode == "acme" {
			isACME = true
			if len(cfg.SSL.AcmeDomains) == 0 {
				return nil, nil, errors.New("ACME mode requires at least one domain (config key 'acme_domains')")
			}
			if err := os.MkdirAll(cfg.SSL.AcmeCacheDir, 0700); err != nil {
				return nil, nil, fmt.Errorf("failed to create ACME cache directory '%s': %w", cfg.SSL.AcmeCacheDir, err)
			}

			certManager := autocert.Manager{
				Prompt:     autocert.AcceptTOS,
				HostPolicy: autocert.HostWhitelist(cfg.SSL.AcmeDomains...),
				Email:      cfg.SSL.AcmeEmail,
				Cache:      autocert.DirCache(cfg.SSL.AcmeCacheDir),
			}
			tlsConfig = certManager.TLSConfig()

			// ACME needs an HTTP challenge listener on :80.
			go func() {
				httpChallengeServer := &http.Server{
					Addr:    ":80",
					Handler: certManager.HTTPHandler(nil),
				}
				logger.Info("Starting ACME HTTP challenge listener", zap.String("addr", ":80"))
				if err := httpChallengeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("ACME HTTP challenge listener error", zap.Error(err))
				}
			}()
		} else {
			certFile = cfg.SSL.CertFile
			keyFile = cfg.SSL.KeyFile
			if certFile == "" {
				return nil, nil, errors.New("manual SSL mode requires a certificate file path (config key 'cert_file')")
			}
			if keyFile == "" {
				return nil, nil, errors.New("manual SSL mode requires a private key file path (config key 'key_file')")
			}
		}
		server.TLSConfig = tlsConfig // set for ACME, nil for manual
	}

	// Channel to report listener errors occurring after startup.
	listenerErrChan := make(chan error, 1)

	go func() {
		defer close(listenerErrChan)

		if cfg.SSL.Enabled {
			logger.Info("Starting HTTPS server", zap.String("addr", cfg.ListenAddr), zap.Bool("isACME", isACME))
			var err error
			if isACME {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServeTLS(certFile, keyFile)
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTPS server listener error", zap.Error(err))
				listenerErrChan <- err
			} else {
				logger.Info("HTTPS server listener stopped gracefully")
			}
		} else {
			logger.Info("Starting HTTP server", zap.String("addr", cfg.ListenAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server listener error", zap.Error(err))
				listenerErrChan <- err
			} else {
				logger.Info("HTTP server listener stopped gracefully")
			}
		}
	}()

	return server, listenerErrChan, nil
}

// ShutdownHTTPServer attempts a graceful shutdown of the HTTP server.
func ShutdownHTTPServer(ctx context.Context, logger *zap.Logger, server *http.Server) {
	if server == nil {
		logger.Warn("Shutdown requested but server instance is nil")
		return
	}
	logger.Info("Attempting graceful shutdown of HTTP/S server...")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("HTTP/S server graceful shutdown failed", zap.Error(err))
	} else {
		logger.Info("HTTP/S server shut down gracefully")
	}
}
