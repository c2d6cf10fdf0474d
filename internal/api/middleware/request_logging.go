package middleware

import (
	"bytes"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/VertexProxyAPI/internal/logging"
	log "github.com/sirupsen/logrus"
)

// maxCapturedBody bounds how much of a body the request logger keeps.
// Streaming responses can be unbounded; the log keeps the head.
const maxCapturedBody = 4 << 20

// captureWriter tees the response through to the client while keeping a
// bounded copy for the request log.
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if w.body.Len() < maxCapturedBody {
		remain := maxCapturedBody - w.body.Len()
		if remain > len(p) {
			remain = len(p)
		}
		w.body.Write(p[:remain])
	}
	return w.ResponseWriter.Write(p)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// RequestLogging assigns each request an id, logs an access line, and
// when the request logger is enabled captures the full exchange to a
// per-request file.
func RequestLogging(logger *logging.FileRequestLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := logging.GenerateRequestID()
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), requestID))

		capture := logger.IsEnabled()
		var requestBody []byte
		var writer *captureWriter
		if capture {
			if c.Request.Body != nil {
				requestBody, _ = io.ReadAll(c.Request.Body)
				c.Request.Body = io.NopCloser(bytes.NewReader(requestBody))
			}
			writer = &captureWriter{ResponseWriter: c.Writer}
			c.Writer = writer
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		entry := log.WithField("request_id", requestID)
		entry.Infof("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), duration.Round(time.Millisecond))

		if capture {
			logger.Log(logging.RequestRecord{
				RequestID:       requestID,
				Method:          c.Request.Method,
				URL:             c.Request.URL.String(),
				RequestHeaders:  c.Request.Header,
				RequestBody:     requestBody,
				Status:          writer.Status(),
				ResponseHeaders: writer.Header(),
				ResponseBody:    writer.body.Bytes(),
				Duration:        duration,
			})
		}
	}
}
