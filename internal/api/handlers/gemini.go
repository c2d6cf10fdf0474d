package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// generateMethods are the upstream RPC methods the native pass-through
// endpoint accepts.
var generateMethods = map[string]bool{
	"generateContent":       true,
	"streamGenerateContent": true,
}

// NativeGenerate serves the native generate endpoints. The wildcard
// segment carries "[publisher/]model:method"; the body passes through
// both ways untouched.
func (h *Handler) NativeGenerate(c *gin.Context) {
	action := strings.TrimPrefix(c.Param("action"), "/")

	colon := strings.LastIndex(action, ":")
	if colon <= 0 || colon == len(action)-1 {
		Error(c, http.StatusNotFound, "invalid_request_error", "expected model:method in path")
		return
	}
	model, method := action[:colon], action[colon+1:]
	if !generateMethods[method] {
		Error(c, http.StatusNotFound, "invalid_request_error", "unknown method "+method)
		return
	}
	// A publisher prefix in the path is accepted and dropped; the
	// upstream URL names the publisher on its own.
	if idx := strings.LastIndex(model, "/"); idx >= 0 {
		model = model[idx+1:]
	}
	if model == "" {
		Error(c, http.StatusNotFound, "invalid_request_error", "model is required")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid_request_error", "reading request body failed")
		return
	}

	headers, ok := h.upstreamAuthHeaders(c)
	if !ok {
		return
	}

	target := appendQuery(h.auth.BuildGenerateURL(model, method), c.Request.URL.Query())
	req, err := upstreamRequest(c, http.MethodPost, target, body, headers)
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
