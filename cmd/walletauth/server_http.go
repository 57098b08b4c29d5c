package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/internal/config"
	"go.uber.org/zap"
)

func buildHTTPServer(cfg *config.Config, router *gin.Engine) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

func serveHTTP(srv *http.Server, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Server.AllowInsecure {
		logger.Warn("serving plain http, tls must be terminated upstream", zap.String("addr", cfg.Server.HTTPAddr))
		return srv.ListenAndServe()
	}

	logger.Info("https listening", zap.String("addr", cfg.Server.HTTPAddr))
	return srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
}
