package translator

import (
	"bytes"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// dataPrefix marks a payload line in the upstream SSE encoding.
var dataPrefix = []byte("data: ")

// StreamConverter incrementally re-frames a Gemini streamGenerateContent
// SSE stream into OpenAI chat-completion chunks. One converter serves
// exactly one streaming call: the response id and creation timestamp are
// fixed at construction so every emitted chunk correlates, and a byte
// buffer carries input split across arbitrary chunk boundaries.
//
// A converter is not safe for concurrent use; each call owns its own.
type StreamConverter struct {
	id       string
	created  int64
	model    string
	sentRole bool
	buf      []byte
}

// NewStreamConverter creates a converter for one streaming call.
func NewStreamConverter(model string) *StreamConverter {
	return &StreamConverter{
		id:      newChatID(),
		created: time.Now().Unix(),
		model:   model,
	}
}

// Feed consumes the next arbitrary byte range of the upstream stream and
// returns zero or more OpenAI chunk JSON bodies, one per upstream
// candidate, in upstream frame order. Lines without the data marker and
// malformed JSON payloads are skipped; a partial trailing line stays
// buffered until its newline arrives.
func (s *StreamConverter) Feed(p []byte) []string {
	s.buf = append(s.buf, p...)

	var out []string
	for {
		idx := bytes.IndexByte(s.buf, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSpace(s.buf[:idx])
		s.buf = s.buf[idx+1:]

		if len(line) == 0 || !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := line[len(dataPrefix):]
		if !gjson.ValidBytes(payload) {
			continue
		}
		out = append(out, s.convertFrame(payload)...)
	}
	return out
}

// convertFrame converts one parsed upstream frame into chunk bodies.
func (s *StreamConverter) convertFrame(frame []byte) []string {
	var chunks []string

	usage := gjson.GetBytes(frame, "usageMetadata")
	hasUsage := usage.IsObject() && len(usage.Map()) > 0

	gjson.GetBytes(frame, "candidates").ForEach(func(_, candidate gjson.Result) bool {
		chunk := `{"id":"","object":"chat.completion.chunk","created":0,"model":"","choices":[{"index":0,"delta":{},"finish_reason":null}]}`
		chunk, _ = sjson.Set(chunk, "id", s.id)
		chunk, _ = sjson.Set(chunk, "created", s.created)
		chunk, _ = sjson.Set(chunk, "model", s.model)
		chunk, _ = sjson.Set(chunk, "choices.0.index", candidate.Get("index").Int())

		if !s.sentRole {
			chunk, _ = sjson.Set(chunk, "choices.0.delta.role", "assistant")
			s.sentRole = true
		}
		if text := candidateText(candidate); text != "" {
			chunk, _ = sjson.Set(chunk, "choices.0.delta.content", text)
		}

		finish := candidate.Get("finishReason").String()
		if mapped, ok := mapFinishReason(finish); ok {
			chunk, _ = sjson.Set(chunk, "choices.0.finish_reason", mapped)
		}

		// Usage rides on the chunk only when the frame reports both a
		// finish reason and usage metadata.
		if finish != "" && hasUsage {
			chunk, _ = sjson.Set(chunk, "usage.prompt_tokens", usage.Get("promptTokenCount").Int())
			chunk, _ = sjson.Set(chunk, "usage.completion_tokens", usage.Get("candidatesTokenCount").Int())
			chunk, _ = sjson.Set(chunk, "usage.total_tokens", usage.Get("totalTokenCount").Int())
		}

		chunks = append(chunks, chunk)
		return true
	})
	return chunks
}
