package server

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"time"

	"taskhub/internal/domain/errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	userIDKey = "user_id"
	tokenKey  = "token"
)

// requireAuth accepts the first session token that verifies, trying the
// cookie, then the bearer header, then (for the websocket handshake only)
// the token query parameter. A stale cookie does not shadow a valid header.
func (api *TaskAPI) requireAuth(allowQuery bool) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokens := api.tokensFromRequest(ctx, allowQuery)
		if len(tokens) == 0 {
			api.abortWithError(ctx, errors.ErrUnauthorized)
			return
		}

		for _, token := range tokens {
			userID, err := api.auth.VerifyToken(token)
			if err != nil {
				continue
			}
			ctx.Set(userIDKey, userID)
			ctx.Set(tokenKey, token)
			ctx.Next()
			return
		}
		api.abortWithError(ctx, errors.ErrInvalidToken)
	}
}

func (api *TaskAPI) tokensFromRequest(ctx *gin.Context, allowQuery bool) []string {
	var tokens []string
	if cookie, err := ctx.Cookie(api.cfg.CookieName); err == nil && cookie != "" {
		tokens = append(tokens, cookie)
	}
	if header := ctx.GetHeader("Authorization"); header != "" {
		scheme, value, ok := strings.Cut(header, " ")
		if value = strings.TrimSpace(value); ok && strings.EqualFold(scheme, "Bearer") && value != "" {
			tokens = append(tokens, value)
		}
	}
	if allowQuery {
		if q := ctx.Query("token"); q != "" {
			tokens = append(tokens, q)
		}
	}
	return tokens
}

func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		status := ctx.Writer.Status()
		ev := log.Info()
		switch {
		case status >= http.StatusInternalServerError:
			ev = log.Error()
		case status >= http.StatusBadRequest:
			ev = log.Warn()
		}

		path := ctx.FullPath()
		if path == "" {
			path = ctx.Request.URL.Path
		}
		ev.Str("method", ctx.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("user_id", ctx.GetString(userIDKey)).
			Msg("request")
	}
}

type gzipBody struct {
	*gzip.Reader
	body io.Closer
}

func (b *gzipBody) Close() error {
	zerr := b.Reader.Close()
	if err := b.body.Close(); err != nil {
		return err
	}
	return zerr
}

func GzipRequestDecompress() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !strings.Contains(strings.ToLower(ctx.GetHeader("Content-Encoding")), "gzip") {
			ctx.Next()
			return
		}

		zr, err := gzip.NewReader(ctx.Request.Body)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": errors.ErrInvalidGzipRequest.Message})
			return
		}
		ctx.Request.Body = &gzipBody{Reader: zr, body: ctx.Request.Body}
		ctx.Request.Header.Del("Content-Encoding")
		ctx.Request.Header.Del("Content-Length")
		ctx.Request.ContentLength = -1
		ctx.Next()
	}
}

const minCompressSize = 1024

// bufferedWriter holds the response body until the handler chain returns so
// the compression decision can see the full size, status and content type.
type bufferedWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bufferedWriter) Write(data []byte) (int, error) { return w.buf.Write(data) }

func (w *bufferedWriter) WriteString(s string) (int, error) { return w.buf.WriteString(s) }

func (w *bufferedWriter) Written() bool { return w.buf.Len() > 0 || w.ResponseWriter.Written() }

func (w *bufferedWriter) Flush() {}

func GzipResponseCompress() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Method == http.MethodHead ||
			!strings.Contains(strings.ToLower(ctx.GetHeader("Accept-Encoding")), "gzip") {
			ctx.Next()
			return
		}

		orig := ctx.Writer
		bw := &bufferedWriter{ResponseWriter: orig}
		ctx.Writer = bw
		ctx.Next()
		ctx.Writer = orig

		addVary(orig.Header())
		body := bw.buf.Bytes()
		if len(body) < minCompressSize || !compressible(orig.Status(), orig.Header()) {
			if len(body) > 0 {
				if _, err := orig.Write(body); err != nil {
					_ = ctx.Error(err)
				}
			}
			return
		}

		orig.Header().Del("Content-Length")
		orig.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(orig)
		if _, err := zw.Write(body); err != nil {
			_ = ctx.Error(err)
		}
		if err := zw.Close(); err != nil {
			_ = ctx.Error(err)
		}
	}
}

func addVary(h http.Header) {
	vary := h.Get("Vary")
	switch {
	case vary == "":
		h.Set("Vary", "Accept-Encoding")
	case !strings.Contains(vary, "Accept-Encoding"):
		h.Set("Vary", vary+", Accept-Encoding")
	}
}

func compressible(status int, h http.Header) bool {
	if status < http.StatusOK || status == http.StatusNoContent || status == http.StatusNotModified ||
		(status >= http.StatusMultipleChoices && status < http.StatusBadRequest) {
		return false
	}
	if h.Get("Content-Encoding") != "" {
		return false
	}
	ct := strings.ToLower(h.Get("Content-Type"))
	for _, prefix := range []string{"application/json", "text/plain", "text/html"} {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}
