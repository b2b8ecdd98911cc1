package gemini

import (
	"strings"
	"testing"
)

func TestExtractJSONObject(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "direct object", input: `{"a":1}`, want: `{"a":1}`},
		{name: "surrounding whitespace", input: "\n  {\"a\":1}\n", want: `{"a":1}`},
		{
			name:  "fenced json",
			input: "```json\n{\"style\":\"modern\"}\n```",
			want:  `{"style":"modern"}`,
		},
		{
			name:  "bare fence",
			input: "```\n{\"style\":\"modern\"}\n```",
			want:  `{"style":"modern"}`,
		},
		{
			name:  "embedded in prose",
			input: `Here is the labeling: {"rooms":["kitchen"]} hope that helps`,
			want:  `{"rooms":["kitchen"]}`,
		},
		{name: "empty", input: "   ", wantErr: true},
		{name: "no object", input: "I cannot label this image.", wantErr: true},
		{name: "broken object", input: `{"a":`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSONObject failed: %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseGenerationConcatenatesParts(t *testing.T) {
	raw := []byte(`{"candidates":[{"content":{"parts":[{"text":"{\"a\":"},{"text":"1}"}]},"finishReason":"STOP"}]}`)
	gen, err := ParseGenerateResponse(raw)
	if err != nil {
		t.Fatalf("parseGeneration failed: %v", err)
	}
	if gen.Text != `{"a":1}` {
		t.Fatalf("unexpected text: %q", gen.Text)
	}
}

func TestParseGenerationAPIError(t *testing.T) {
	raw := []byte(`{"error":{"code":400,"status":"INVALID_ARGUMENT","message":"bad image"}}`)
	if _, err := ParseGenerateResponse(raw); err == nil || !strings.Contains(err.Error(), "bad image") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestNoPayloadMessageRecitation(t *testing.T) {
	raw := []byte(`{"candidates":[{"content":{"parts":[]},"finishReason":"RECITATION"}]}`)
	gen, err := ParseGenerateResponse(raw)
	if err != nil {
		t.Fatalf("parseGeneration failed: %v", err)
	}
	if !gen.HasFinishReason(FinishReasonRecitation) {
		t.Fatal("expected recitation finish reason")
	}
	msg := gen.NoPayloadMessage()
	if !strings.Contains(msg, "RECITATION") {
		t.Fatalf("diagnostic should name the finish reason: %q", msg)
	}
}

func TestNoPayloadMessageBlockReason(t *testing.T) {
	raw := []byte(`{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`)
	gen, err := ParseGenerateResponse(raw)
	if err != nil {
		t.Fatalf("parseGeneration failed: %v", err)
	}
	if !strings.Contains(gen.NoPayloadMessage(), "block=SAFETY") {
		t.Fatalf("diagnostic should name the block reason: %q", gen.NoPayloadMessage())
	}
}
