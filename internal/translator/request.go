// Package translator converts request and response bodies between the
// OpenAI chat-completions dialect and the native Gemini generateContent
// dialect. All functions operate on raw JSON via gjson/sjson, hold no
// shared state, and are safe for concurrent use.
package translator

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ConvertChatRequest transforms an OpenAI chat-completions request body
// into a Gemini generateContent body. It returns the model id (with a
// leading "google/" publisher prefix stripped), the converted body, and
// whether the caller requested streaming.
func ConvertChatRequest(rawJSON []byte) (string, []byte, bool) {
	root := gjson.ParseBytes(rawJSON)

	model := strings.TrimPrefix(root.Get("model").String(), "google/")
	stream := root.Get("stream").Bool()

	out := `{"contents":[]}`

	systemParts := `[]`
	systemCount := 0

	if messages := root.Get("messages"); messages.IsArray() {
		messages.ForEach(func(_, msg gjson.Result) bool {
			role := msg.Get("role").String()
			content := msg.Get("content")

			// System messages feed the separate systemInstruction field;
			// only text parts are taken from structured content.
			if role == "system" {
				if content.Type == gjson.String {
					part, _ := sjson.Set(`{"text":""}`, "text", content.String())
					systemParts, _ = sjson.SetRaw(systemParts, "-1", part)
					systemCount++
				} else if content.IsArray() {
					content.ForEach(func(_, item gjson.Result) bool {
						if item.Get("type").String() == "text" {
							part, _ := sjson.Set(`{"text":""}`, "text", item.Get("text").String())
							systemParts, _ = sjson.SetRaw(systemParts, "-1", part)
							systemCount++
						}
						return true
					})
				}
				return true
			}

			geminiRole := "user"
			if role == "assistant" {
				geminiRole = "model"
			}

			parts, count := contentToParts(content)
			if count == 0 {
				return true
			}
			entry, _ := sjson.Set(`{"role":"","parts":[]}`, "role", geminiRole)
			entry, _ = sjson.SetRaw(entry, "parts", parts)
			out, _ = sjson.SetRaw(out, "contents.-1", entry)
			return true
		})
	}

	if systemCount > 0 {
		out, _ = sjson.SetRaw(out, "systemInstruction.parts", systemParts)
	}

	genConfig := `{}`
	genCount := 0
	setGen := func(key string, value interface{}) {
		genConfig, _ = sjson.Set(genConfig, key, value)
		genCount++
	}

	if v := root.Get("max_tokens"); v.Exists() {
		setGen("maxOutputTokens", v.Int())
	}
	if v := root.Get("max_completion_tokens"); v.Exists() {
		setGen("maxOutputTokens", v.Int())
	}
	if v := root.Get("temperature"); v.Exists() {
		setGen("temperature", v.Float())
	}
	if v := root.Get("top_p"); v.Exists() {
		setGen("topP", v.Float())
	}
	if stop := root.Get("stop"); stop.Exists() {
		if stop.Type == gjson.String {
			setGen("stopSequences", []string{stop.String()})
		} else if stop.IsArray() {
			genConfig, _ = sjson.SetRaw(genConfig, "stopSequences", stop.Raw)
			genCount++
		}
	}
	if n := root.Get("n"); n.Exists() && n.Int() > 1 {
		setGen("candidateCount", n.Int())
	}

	if genCount > 0 {
		out, _ = sjson.SetRaw(out, "generationConfig", genConfig)
	}

	return model, []byte(out), stream
}

// contentToParts converts one OpenAI message content value into a Gemini
// parts array, returning the array JSON and the number of parts.
func contentToParts(content gjson.Result) (string, int) {
	parts := `[]`
	count := 0
	add := func(part string) {
		parts, _ = sjson.SetRaw(parts, "-1", part)
		count++
	}

	if content.Type == gjson.String {
		part, _ := sjson.Set(`{"text":""}`, "text", content.String())
		add(part)
		return parts, count
	}

	if !content.IsArray() {
		// Scalar non-string content is coerced to text.
		if content.Exists() && content.Type != gjson.Null && content.String() != "" {
			part, _ := sjson.Set(`{"text":""}`, "text", content.String())
			add(part)
		}
		return parts, count
	}

	content.ForEach(func(_, item gjson.Result) bool {
		switch item.Get("type").String() {
		case "", "text":
			part, _ := sjson.Set(`{"text":""}`, "text", item.Get("text").String())
			add(part)
		case "image_url":
			url := item.Get("image_url.url").String()
			if url == "" && item.Get("image_url").Type == gjson.String {
				url = item.Get("image_url").String()
			}
			if strings.HasPrefix(url, "data:") {
				mimeType := strings.TrimPrefix(url, "data:")
				data := ""
				if idx := strings.Index(url, ";base64,"); idx >= 0 {
					mimeType = strings.TrimPrefix(url[:idx], "data:")
					data = url[idx+len(";base64,"):]
				}
				part, _ := sjson.Set(`{"inlineData":{"mimeType":"","data":""}}`, "inlineData.mimeType", mimeType)
				part, _ = sjson.Set(part, "inlineData.data", data)
				add(part)
			} else if url != "" {
				// Remote references carry no MIME type in the OpenAI
				// dialect; image/jpeg is the upstream default.
				part, _ := sjson.Set(`{"fileData":{"mimeType":"image/jpeg","fileUri":""}}`, "fileData.fileUri", url)
				add(part)
			}
		}
		return true
	})
	return parts, count
}
