package handlers

import "github.com/gin-gonic/gin"

// ErrorDetail is the OpenAI-style error payload.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// ErrorResponse wraps an ErrorDetail the way OpenAI clients expect.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// Error writes a local error response. Upstream error bodies are never
// rewritten into this shape; they pass through verbatim.
func Error(c *gin.Context, status int, errType, message string) {
	c.JSON(status, ErrorResponse{Error: ErrorDetail{Message: message, Type: errType}})
}
