package translator

import (
	"testing"

	"github.com/tidwall/gjson"
)

func feedAll(t *testing.T, conv *StreamConverter, input string, chunkSize int) []string {
	t.Helper()
	var out []string
	for i := 0; i < len(input); i += chunkSize {
		end := i + chunkSize
		if end > len(input) {
			end = len(input)
		}
		out = append(out, conv.Feed([]byte(input[i:end]))...)
	}
	return out
}

const sampleStream = `data: {"candidates":[{"index":0,"content":{"parts":[{"text":"Hel"}]}}]}

data: {"candidates":[{"index":0,"content":{"parts":[{"text":"lo"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":5,"candidatesTokenCount":2,"totalTokenCount":7}}

`

func TestStreamConverterBasic(t *testing.T) {
	conv := NewStreamConverter("gemini-2.0-flash")
	chunks := conv.Feed([]byte(sampleStream))
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}

	first := gjson.Parse(chunks[0])
	if got := first.Get("object").String(); got != "chat.completion.chunk" {
		t.Errorf("object = %q", got)
	}
	if got := first.Get("choices.0.delta.role").String(); got != "assistant" {
		t.Errorf("first chunk role = %q, want assistant", got)
	}
	if got := first.Get("choices.0.delta.content").String(); got != "Hel" {
		t.Errorf("first content = %q", got)
	}
	if first.Get("usage").Exists() {
		t.Error("usage should not appear before the final frame")
	}

	second := gjson.Parse(chunks[1])
	if second.Get("choices.0.delta.role").Exists() {
		t.Error("role delta must only appear on the first chunk")
	}
	if got := second.Get("choices.0.delta.content").String(); got != "lo" {
		t.Errorf("second content = %q", got)
	}
	if got := second.Get("choices.0.finish_reason").String(); got != "stop" {
		t.Errorf("finish = %q", got)
	}
	if got := second.Get("usage.total_tokens").Int(); got != 7 {
		t.Errorf("total_tokens = %d", got)
	}

	if first.Get("id").String() != second.Get("id").String() {
		t.Error("all chunks of one stream must share an id")
	}
	if first.Get("created").Int() != second.Get("created").Int() {
		t.Error("all chunks of one stream must share a created timestamp")
	}
}

func TestStreamConverterArbitraryBoundaries(t *testing.T) {
	whole := NewStreamConverter("m")
	want := whole.Feed([]byte(sampleStream))

	for _, size := range []int{1, 3, 7, 64} {
		conv := NewStreamConverter("m")
		got := feedAll(t, conv, sampleStream, size)
		if len(got) != len(want) {
			t.Fatalf("chunk size %d: got %d chunks, want %d", size, len(got), len(want))
		}
		for i := range got {
			g, w := gjson.Parse(got[i]), gjson.Parse(want[i])
			if g.Get("choices.0.delta.content").String() != w.Get("choices.0.delta.content").String() {
				t.Errorf("chunk size %d: content mismatch at %d", size, i)
			}
			if g.Get("choices.0.finish_reason").Raw != w.Get("choices.0.finish_reason").Raw {
				t.Errorf("chunk size %d: finish mismatch at %d", size, i)
			}
		}
	}
}

func TestStreamConverterSkipsNoise(t *testing.T) {
	conv := NewStreamConverter("m")
	input := ": comment\n" +
		"event: ping\n" +
		"data: not json\n" +
		"data: {\"candidates\":[{\"index\":0,\"content\":{\"parts\":[{\"text\":\"ok\"}]}}]}\n\n"
	chunks := conv.Feed([]byte(input))
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	if got := gjson.Get(chunks[0], "choices.0.delta.content").String(); got != "ok" {
		t.Errorf("content = %q", got)
	}
}

func TestStreamConverterNoUsageWithoutFinish(t *testing.T) {
	conv := NewStreamConverter("m")
	input := `data: {"candidates":[{"index":0,"content":{"parts":[{"text":"x"}]}}],"usageMetadata":{"promptTokenCount":1}}` + "\n"
	chunks := conv.Feed([]byte(input))
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d", len(chunks))
	}
	if gjson.Get(chunks[0], "usage").Exists() {
		t.Error("usage must require a finish reason on the same frame")
	}
}

func TestStreamConverterEmptyTextOmitsContent(t *testing.T) {
	conv := NewStreamConverter("m")
	input := `data: {"candidates":[{"index":0,"content":{"parts":[]},"finishReason":"STOP"}]}` + "\n"
	chunks := conv.Feed([]byte(input))
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d", len(chunks))
	}
	if gjson.Get(chunks[0], "choices.0.delta.content").Exists() {
		t.Error("empty text must not produce a content delta")
	}
	if got := gjson.Get(chunks[0], "choices.0.finish_reason").String(); got != "stop" {
		t.Errorf("finish = %q", got)
	}
}

func TestStreamConverterMultipleCandidates(t *testing.T) {
	conv := NewStreamConverter("m")
	input := `data: {"candidates":[{"index":0,"content":{"parts":[{"text":"a"}]}},{"index":1,"content":{"parts":[{"text":"b"}]}}]}` + "\n"
	chunks := conv.Feed([]byte(input))
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if got := gjson.Get(chunks[0], "choices.0.index").Int(); got != 0 {
		t.Errorf("first index = %d", got)
	}
	if got := gjson.Get(chunks[1], "choices.0.index").Int(); got != 1 {
		t.Errorf("second index = %d", got)
	}
}
