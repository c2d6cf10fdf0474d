package translator

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// newChatID generates an opaque chat-completion response id.
func newChatID() string {
	id := uuid.New()
	return "chatcmpl-" + hex.EncodeToString(id[:])[:12]
}

// mapFinishReason maps a Gemini finish reason to the OpenAI value.
// Unknown reasons map to nothing; the field stays null.
func mapFinishReason(reason string) (string, bool) {
	switch reason {
	case "STOP", "FINISH_REASON_STOP":
		return "stop", true
	case "MAX_TOKENS", "FINISH_REASON_MAX_TOKENS":
		return "length", true
	case "SAFETY", "FINISH_REASON_SAFETY", "RECITATION":
		return "content_filter", true
	}
	return "", false
}

// ConvertGeminiResponse transforms a non-streaming Gemini generateContent
// response into an OpenAI chat-completion body. Each upstream candidate
// becomes one choice in candidate order; all text parts of a candidate
// are concatenated into a single message string.
func ConvertGeminiResponse(rawJSON []byte, model string) []byte {
	out := `{"id":"","object":"chat.completion","created":0,"model":"","choices":[]}`
	out, _ = sjson.Set(out, "id", newChatID())
	out, _ = sjson.Set(out, "created", time.Now().Unix())
	out, _ = sjson.Set(out, "model", model)

	index := 0
	if candidates := gjson.GetBytes(rawJSON, "candidates"); candidates.IsArray() {
		candidates.ForEach(func(_, candidate gjson.Result) bool {
			choice := `{"index":0,"message":{"role":"assistant","content":""},"finish_reason":null}`
			choice, _ = sjson.Set(choice, "index", index)
			choice, _ = sjson.Set(choice, "message.content", candidateText(candidate))
			if mapped, ok := mapFinishReason(candidate.Get("finishReason").String()); ok {
				choice, _ = sjson.Set(choice, "finish_reason", mapped)
			}
			out, _ = sjson.SetRaw(out, "choices.-1", choice)
			index++
			return true
		})
	}

	usage := gjson.GetBytes(rawJSON, "usageMetadata")
	out, _ = sjson.Set(out, "usage.prompt_tokens", usage.Get("promptTokenCount").Int())
	out, _ = sjson.Set(out, "usage.completion_tokens", usage.Get("candidatesTokenCount").Int())
	out, _ = sjson.Set(out, "usage.total_tokens", usage.Get("totalTokenCount").Int())

	return []byte(out)
}

// candidateText concatenates every text part of a candidate's content.
func candidateText(candidate gjson.Result) string {
	var b strings.Builder
	candidate.Get("content.parts").ForEach(func(_, part gjson.Result) bool {
		b.WriteString(part.Get("text").String())
		return true
	})
	return b.String()
}
