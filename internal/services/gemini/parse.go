package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tagpipe/internal/textutil"
)

// FinishReasonRecitation marks responses the model aborted because the
// output tracked training data too closely. These frequently arrive with
// no usable text and are the trigger for model fallback.
const FinishReasonRecitation = "RECITATION"

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// ParseGenerateResponse decodes a generateContent response body. Batch
// ingestion reuses it for the per-line response envelopes in result files.
func ParseGenerateResponse(raw []byte) (Generation, error) {
	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Generation{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != nil {
		return Generation{}, fmt.Errorf("api error %d (%s): %s",
			resp.Error.Code, resp.Error.Status, strings.TrimSpace(resp.Error.Message))
	}
	gen := Generation{
		Raw:         raw,
		BlockReason: strings.TrimSpace(resp.PromptFeedback.BlockReason),
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if reason := strings.TrimSpace(cand.FinishReason); reason != "" {
			gen.FinishReasons = append(gen.FinishReasons, reason)
		}
		for _, part := range cand.Content.Parts {
			text.WriteString(part.Text)
		}
	}
	gen.Text = strings.TrimSpace(text.String())
	return gen, nil
}

// HasFinishReason reports whether any candidate finished with reason.
func (g Generation) HasFinishReason(reason string) bool {
	for _, r := range g.FinishReasons {
		if strings.EqualFold(r, reason) {
			return true
		}
	}
	return false
}

// NoPayloadMessage summarizes why a generation produced no usable JSON,
// for diagnostics on malformed-response errors.
func (g Generation) NoPayloadMessage() string {
	parts := []string{"no json payload"}
	if len(g.FinishReasons) > 0 {
		parts = append(parts, "finish="+strings.Join(g.FinishReasons, ","))
	}
	if g.BlockReason != "" {
		parts = append(parts, "block="+g.BlockReason)
	}
	if g.Text != "" {
		parts = append(parts, "text_snippet="+summarizeSnippet(g.Text))
	}
	return strings.Join(parts, " ")
}

// ExtractJSONObject pulls the first JSON object out of model text: direct
// unmarshal first, then with code fences stripped, then by scanning for
// an embedded {...} span. It returns the canonical object bytes.
func ExtractJSONObject(content string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, errors.New("empty payload")
	}

	if obj, ok := tryObject(trimmed); ok {
		return obj, nil
	}

	stripped := stripCodeFenceBlock(trimmed)
	if obj, ok := tryObject(stripped); ok {
		return obj, nil
	}

	if start := strings.Index(stripped, "{"); start >= 0 {
		if end := strings.LastIndex(stripped, "}"); end > start {
			if obj, ok := tryObject(strings.TrimSpace(stripped[start : end+1])); ok {
				return obj, nil
			}
		}
	}

	return nil, fmt.Errorf("no json object found (payload snippet: %s)", summarizeSnippet(trimmed))
}

func tryObject(candidate string) (json.RawMessage, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || candidate[0] != '{' {
		return nil, false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &probe); err != nil {
		return nil, false
	}
	return json.RawMessage(candidate), true
}

func stripCodeFenceBlock(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := trimmed[3:]
	body = strings.TrimLeft(body, " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
		body = strings.TrimLeft(body, " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func summarizeSnippet(content string) string {
	return textutil.Snippet(content, 160)
}
