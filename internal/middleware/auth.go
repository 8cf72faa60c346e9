package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	apierrors "keyforge/internal/errors"
)

const (
	// APIKeyHeader carries the admin API key
	APIKeyHeader = "X-API-Key"
	// APIKeyQueryParam carries the key on websocket upgrades, where browsers cannot set headers
	APIKeyQueryParam = "api_key"
)

type apiClientKey struct{}

// APIClientFromContext returns the fingerprint of the key that authenticated the request
func APIClientFromContext(ctx context.Context) string {
	client, _ := ctx.Value(apiClientKey{}).(string)
	return client
}

// APIKeyAuth admits requests carrying one of validKeys in X-API-Key.
// With no keys configured every request is admitted.
func APIKeyAuth(logger *slog.Logger, errorHandler *apierrors.ErrorHandler, validKeys []string) func(next http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "api_key_auth"))

	digests := make([][32]byte, 0, len(validKeys))
	for _, k := range validKeys {
		if k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}

	return func(next http.Handler) http.Handler {
		if len(digests) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			apiKey := r.Header.Get(APIKeyHeader)
			if apiKey == "" && websocket.IsWebSocketUpgrade(r) {
				apiKey = r.URL.Query().Get(APIKeyQueryParam)
			}
			if apiKey == "" {
				logger.WarnContext(ctx, "missing API key",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				errorHandler.HandleError(w, r, apierrors.ErrUnauthorized)
				return
			}

			sum := sha256.Sum256([]byte(apiKey))
			match := 0
			for _, d := range digests {
				match |= subtle.ConstantTimeCompare(sum[:], d[:])
			}
			if match != 1 {
				logger.WarnContext(ctx, "invalid API key",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				errorHandler.HandleError(w, r, apierrors.New(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key"))
				return
			}

			client := hex.EncodeToString(sum[:4])
			logger.DebugContext(ctx, "API key accepted", slog.String("client", client))
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, apiClientKey{}, client)))
		})
	}
}

// AuditLog records who performed each admin mutation
func AuditLog(logger *slog.Logger) func(next http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "audit"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			ww := &auditResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)

			logger.InfoContext(r.Context(), "admin action",
				slog.String("client", APIClientFromContext(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.statusCode),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

type auditResponseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (w *auditResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *auditResponseWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}
