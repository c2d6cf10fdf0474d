package handlers

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/VertexProxyAPI/internal/logging"
	"github.com/router-for-me/VertexProxyAPI/internal/translator"
)

// hopHeaders are request headers never forwarded upstream. Host and
// Content-Length are recomputed by the transport; Authorization carries
// the caller's key, not upstream credentials; Accept-Encoding is dropped
// so the stdlib transport negotiates and decompresses transparently.
var hopHeaders = []string{"Host", "Authorization", "Content-Length", "Accept-Encoding"}

// upstreamRequest builds the outgoing request: caller headers minus the
// hop set, then the auth provider's headers on top.
func upstreamRequest(c *gin.Context, method, url string, body []byte, authHeaders map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(c.Request.Context(), method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for name, values := range c.Request.Header {
		if isHopHeader(name) {
			continue
		}
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if req.Header.Get("Content-Type") == "" && len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range authHeaders {
		req.Header.Set(k, v)
	}
	return req, nil
}

func isHopHeader(name string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}

// forward sends the upstream request and writes a 502 on transport
// failure. The caller owns the response body on success.
func (h *Handler) forward(c *gin.Context, req *http.Request) (*http.Response, bool) {
	resp, err := h.client.Do(req)
	if err != nil {
		logging.WithRequestIDEntry(c.Request.Context()).
			Errorf("upstream request failed: %v", err)
		Error(c, http.StatusBadGateway, "server_error", "upstream request failed")
		return nil, false
	}
	return resp, true
}

// streamProxy mirrors the upstream response to the caller unchanged:
// same status, same content type, chunks flushed as they arrive.
func streamProxy(c *gin.Context, resp *http.Response) {
	defer func() { _ = resp.Body.Close() }()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		c.Header("Content-Type", ct)
	}
	c.Status(resp.StatusCode)

	flusher, _ := c.Writer.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, errWrite := c.Writer.Write(buf[:n]); errWrite != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

// proxyTranslated reads the full upstream response and translates a 200
// body into the OpenAI chat-completion shape. Upstream errors pass
// through verbatim with their original status.
func proxyTranslated(c *gin.Context, resp *http.Response, model string) {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		Error(c, http.StatusBadGateway, "server_error", "reading upstream response failed")
		return
	}
	if resp.StatusCode != http.StatusOK {
		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/json"
		}
		c.Data(resp.StatusCode, contentType, body)
		return
	}
	c.Data(http.StatusOK, "application/json", translator.ConvertGeminiResponse(body, model))
}

// streamTranslated re-frames an upstream SSE stream into OpenAI chunk
// events, ending with the [DONE] sentinel. A non-200 upstream response
// is never re-framed; its body passes through verbatim.
func streamTranslated(c *gin.Context, resp *http.Response, model string) {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/json"
		}
		c.Data(resp.StatusCode, contentType, body)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Status(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	conv := translator.NewStreamConverter(model)
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			for _, chunk := range conv.Feed(buf[:n]) {
				if _, errWrite := c.Writer.WriteString("data: " + chunk + "\n\n"); errWrite != nil {
					return
				}
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			break
		}
	}

	_, _ = c.Writer.WriteString("data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}
