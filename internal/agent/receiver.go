package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/five82/fridgewatch/internal/push"
)

// maxBody bounds an encrypted push message. RFC 8030 services accept at
// least 4096 bytes of payload; the extra room covers the header block.
const maxBody = 8 << 10

// KeyStore resolves an endpoint token to its registration.
type KeyStore interface {
	Lookup(token string) (push.Registration, error)
}

// Receiver is the HTTP push endpoint for locally generated subscriptions.
type Receiver struct {
	keys   KeyStore
	agent  *Agent
	logger *zap.Logger
	engine *gin.Engine
}

// NewReceiver builds the receiver and its routes.
func NewReceiver(keys KeyStore, agent *Agent, logger *zap.Logger) *Receiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Receiver{keys: keys, agent: agent, logger: logger}

	engine := gin.New()
	engine.Use(gin.Recovery(), r.accessLog())
	engine.POST("/push/:token", r.handlePush)
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.engine = engine
	return r
}

// Handler exposes the routes for embedding or tests.
func (r *Receiver) Handler() http.Handler {
	return r.engine
}

// Serve listens on addr until ctx is cancelled.
func (r *Receiver) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return r.ServeListener(ctx, ln)
}

// ServeListener serves on an existing listener until ctx is cancelled.
func (r *Receiver) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           r.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	r.logger.Info("push receiver listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown receiver: %w", err)
	}
	return nil
}

func (r *Receiver) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		r.logger.Debug("push request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (r *Receiver) handlePush(c *gin.Context) {
	token := c.Param("token")
	reg, err := r.keys.Lookup(token)
	switch {
	case errors.Is(err, push.ErrGone):
		c.AbortWithStatusJSON(http.StatusGone, gin.H{"error": "subscription gone"})
		return
	case errors.Is(err, push.ErrUnknownEndpoint):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown subscription"})
		return
	case err != nil:
		r.logger.Error("keystore lookup failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "keystore unavailable"})
		return
	}

	if err := push.VerifyVAPID(c.GetHeader("Authorization"), reg.ApplicationServerKey, reg.Endpoint); err != nil {
		status := http.StatusForbidden
		if errors.Is(err, push.ErrMissingAuthorization) {
			status = http.StatusUnauthorized
		}
		r.logger.Warn("push rejected", zap.Int("status", status), zap.Error(err))
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}

	if enc := c.GetHeader("Content-Encoding"); enc != "aes128gcm" {
		c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{"error": "content encoding must be aes128gcm"})
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBody))
	if err != nil {
		status := bodyReadStatus(err)
		r.logger.Warn("push body read failed", zap.Int("status", status), zap.Error(err))
		c.AbortWithStatusJSON(status, gin.H{"error": http.StatusText(status)})
		return
	}

	plaintext, err := push.Decrypt(body, reg.PrivateKey, reg.Auth)
	if err != nil {
		r.logger.Warn("push decrypt failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "cannot decrypt payload"})
		return
	}

	if _, err := r.agent.HandlePush(c.Request.Context(), plaintext); err != nil {
		r.logger.Error("push display failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "display failed"})
		return
	}
	c.Status(http.StatusCreated)
}

// bodyReadStatus maps a body read failure to a response code. Only an
// oversized body is 413; a truncated or broken body is the sender's fault.
func bodyReadStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}
