package handlers

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/VertexProxyAPI/internal/config"
	"github.com/router-for-me/VertexProxyAPI/internal/translator"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ChatCompletions serves the OpenAI-compatible chat endpoint. In
// service-account mode the request rides Vertex's own OpenAI-compatible
// endpoint untouched; in api-key mode it is translated to the native
// generate dialect and the response translated back.
func (h *Handler) ChatCompletions(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid_request_error", "reading request body failed")
		return
	}

	if h.cfg().AuthMode() == config.AuthModeAPIKey {
		h.chatViaGenerate(c, body)
		return
	}
	h.chatViaOpenAPI(c, body)
}

// chatViaOpenAPI forwards the request to the Vertex OpenAI-compatible
// endpoint verbatim, only normalizing the model id to carry a publisher
// prefix as that endpoint requires.
func (h *Handler) chatViaOpenAPI(c *gin.Context, body []byte) {
	if model := gjson.GetBytes(body, "model").String(); model != "" && !strings.Contains(model, "/") {
		body, _ = sjson.SetBytes(body, "model", "google/"+model)
	}

	headers, ok := h.upstreamAuthHeaders(c)
	if !ok {
		return
	}

	path := strings.TrimPrefix(c.Request.URL.Path, "/v1")
	target, err := h.auth.BuildCompletionsURL(path)
	if err != nil {
		writeAuthError(c, err)
		return
	}
	target = appendQuery(target, c.Request.URL.Query())

	req, err := upstreamRequest(c, c.Request.Method, target, body, headers)
	if err != nil {
		Error(c, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	resp, ok := h.forward(c, req)
	if !ok {
		return
	}
	streamProxy(c, resp)
}

// chatViaGenerate translates the chat request into the native generate
// dialect, calls the model endpoint, and translates the response back.
func (h *Handler) chatViaGenerate(c *gin.Context, body []byte) {
	model, geminiBody, stream := translator.ConvertChatRequest(body)
	if model == "" {
		Error(c, http.StatusBadRequest, "invalid_request_error", "model is required")
		return
	}

	headers, ok := h.upstreamAuthHeaders(c)
	if !ok {
		return
	}

	method := "generateContent"
	if stream {
		method = "streamGenerateContent"
	}
	target := h.auth.BuildGenerateURL(model, method)
	if stream {
		target = appendRawQuery(target, "alt=sse")
	}

	req, err := upstreamRequest(c, http.MethodPost, target, geminiBody, headers)
	if err != nil {
		Error(c, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	resp, ok := h.forward(c, req)
	if !ok {
		return
	}
	if stream {
		streamTranslated(c, resp, model)
		return
	}
	proxyTranslated(c, resp, model)
}

// appendQuery attaches the caller's query parameters to the target URL,
// dropping the key parameter so caller credentials never reach upstream.
func appendQuery(target string, query url.Values) string {
	filtered := url.Values{}
	for name, values := range query {
		if name == "key" {
			continue
		}
		filtered[name] = values
	}
	if len(filtered) == 0 {
		return target
	}
	return appendRawQuery(target, filtered.Encode())
}

// appendRawQuery joins a pre-encoded query fragment onto a URL that may
// already carry a query string.
func appendRawQuery(target, rawQuery string) string {
	if rawQuery == "" {
		return target
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + rawQuery
}
