package logging

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/router-for-me/VertexProxyAPI/internal/buildinfo"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tiktoken-go/tokenizer"
)

// FileRequestLogger writes one log file per handled request under the
// logs directory. It is wired in by the request logging middleware and
// only active while the enabled callback reports true, so hot reloads
// of the request-log setting apply without restarting.
type FileRequestLogger struct {
	dir     string
	enabled func() bool
}

// NewFileRequestLogger creates a request logger writing to dir.
func NewFileRequestLogger(dir string, enabled func() bool) *FileRequestLogger {
	if dir == "" {
		dir = "logs"
	}
	return &FileRequestLogger{dir: dir, enabled: enabled}
}

// SetEnabledFunc installs the enabled callback. Used when the callback
// needs state that only exists after the logger is constructed; call it
// before the server starts handling requests.
func (l *FileRequestLogger) SetEnabledFunc(enabled func() bool) {
	l.enabled = enabled
}

// IsEnabled reports whether request logging is currently on.
func (l *FileRequestLogger) IsEnabled() bool {
	return l != nil && l.enabled != nil && l.enabled()
}

// RequestRecord captures everything the logger writes for one request.
type RequestRecord struct {
	RequestID       string
	Method          string
	URL             string
	RequestHeaders  http.Header
	RequestBody     []byte
	Status          int
	ResponseHeaders http.Header
	ResponseBody    []byte
	Duration        time.Duration
}

// Log writes the record to a timestamped file. Failures are logged and
// swallowed; request logging never fails the request itself.
func (l *FileRequestLogger) Log(rec RequestRecord) {
	if !l.IsEnabled() {
		return
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		log.Errorf("request logger: create log directory: %v", err)
		return
	}

	name := fmt.Sprintf("request_%s_%s.log", time.Now().Format("20060102_150405"), rec.RequestID)
	path := filepath.Join(l.dir, name)

	var content strings.Builder
	content.WriteString("=== REQUEST INFO ===\n")
	content.WriteString(fmt.Sprintf("Version: %s\n", buildinfo.Version))
	content.WriteString(fmt.Sprintf("URL: %s\n", rec.URL))
	content.WriteString(fmt.Sprintf("Method: %s\n", rec.Method))
	content.WriteString(fmt.Sprintf("Timestamp: %s\n", time.Now().Format(time.RFC3339Nano)))
	content.WriteString(fmt.Sprintf("Duration: %s\n", rec.Duration))
	content.WriteString("\n")

	content.WriteString("=== REQUEST HEADERS ===\n")
	writeHeaders(&content, rec.RequestHeaders)
	content.WriteString("\n=== REQUEST BODY ===\n")
	content.Write(rec.RequestBody)
	content.WriteString("\n")

	if tokens, err := estimatePromptTokens(rec.RequestBody); err == nil && tokens > 0 {
		content.WriteString(fmt.Sprintf("\n=== PROMPT TOKENS (approx) ===\n%d\n", tokens))
	}

	content.WriteString("\n=== RESPONSE INFO ===\n")
	content.WriteString(fmt.Sprintf("Status: %d\n", rec.Status))
	content.WriteString("\n=== RESPONSE HEADERS ===\n")
	writeHeaders(&content, rec.ResponseHeaders)

	body, err := decompressBody(rec.ResponseHeaders.Get("Content-Encoding"), rec.ResponseBody)
	if err != nil {
		log.Warnf("request logger: decompress response: %v", err)
		body = rec.ResponseBody
	}
	content.WriteString("\n=== RESPONSE BODY ===\n")
	content.Write(body)
	content.WriteString("\n")

	if errWrite := os.WriteFile(path, []byte(content.String()), 0o644); errWrite != nil {
		log.Errorf("request logger: write %s: %v", path, errWrite)
	}
}

func writeHeaders(w *strings.Builder, headers http.Header) {
	for key, values := range headers {
		for _, value := range values {
			if strings.EqualFold(key, "Authorization") {
				value = maskSecret(value)
			}
			w.WriteString(fmt.Sprintf("%s: %s\n", key, value))
		}
	}
}

// maskSecret keeps only the edges of a credential visible.
func maskSecret(value string) string {
	if len(value) <= 12 {
		return "***"
	}
	return value[:8] + "..." + value[len(value)-4:]
}

// decompressBody decodes a response body by its Content-Encoding so log
// files stay readable. Unknown encodings pass through untouched.
func decompressBody(encoding string, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		defer func() {
			if errClose := reader.Close(); errClose != nil {
				log.WithError(errClose).Warn("failed to close gzip reader in request logger")
			}
		}()
		return io.ReadAll(reader)
	case "deflate":
		reader := flate.NewReader(bytes.NewReader(data))
		defer func() {
			if errClose := reader.Close(); errClose != nil {
				log.WithError(errClose).Warn("failed to close deflate reader in request logger")
			}
		}()
		return io.ReadAll(reader)
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	case "zstd":
		decoder, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		defer decoder.Close()
		return io.ReadAll(decoder)
	default:
		return data, nil
	}
}

// estimatePromptTokens approximates the prompt token count of an
// OpenAI-style chat payload. Log-only; response usage always mirrors
// the upstream counters.
func estimatePromptTokens(payload []byte) (int, error) {
	if len(payload) == 0 || !gjson.ValidBytes(payload) {
		return 0, nil
	}
	messages := gjson.GetBytes(payload, "messages")
	if !messages.IsArray() {
		return 0, nil
	}

	var segments []string
	messages.ForEach(func(_, msg gjson.Result) bool {
		content := msg.Get("content")
		if content.IsArray() {
			content.ForEach(func(_, part gjson.Result) bool {
				if text := part.Get("text"); text.Exists() {
					segments = append(segments, text.String())
				}
				return true
			})
		} else if content.Type == gjson.String {
			segments = append(segments, content.String())
		}
		return true
	})

	joined := strings.TrimSpace(strings.Join(segments, "\n"))
	if joined == "" {
		return 0, nil
	}

	enc, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return 0, err
	}
	count, err := enc.Count(joined)
	if err != nil {
		return 0, err
	}
	return count, nil
}
