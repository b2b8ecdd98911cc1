package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newGenerateServer(t *testing.T, payload string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":` + payload + `}]},"finishReason":"STOP"}]}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRunInteractiveLabelsCatalog(t *testing.T) {
	env := setupCLITestEnv(t, 3)
	server := newGenerateServer(t, `"{\"tags\":[\"forest\"]}"`)
	env.cfg.Gemini.BaseURL = server.URL
	configPath := writeTestConfig(t, env.cfg)

	out, _, err := runCLI(t, []string{"run", "--mode", "interactive"}, configPath)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	requireContains(t, out, "Selected 3 of 3 items")
	requireContains(t, out, "Labeled 3 (0 via fallback), 0 errored, 0 skipped")
	requireContains(t, out, "Run complete.")

	// Everything is covered now, so a second run has nothing to do.
	out, _, err = runCLI(t, []string{"run", "--mode", "interactive"}, configPath)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	requireContains(t, out, "Nothing to label.")
}

func TestRunRejectsUnknownMode(t *testing.T) {
	env := setupCLITestEnv(t, 0)

	_, _, err := runCLI(t, []string{"run", "--mode", "turbo"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "unknown mode") {
		t.Fatalf("expected unknown mode error, got %v", err)
	}
}

func TestEstimateReportsSelection(t *testing.T) {
	env := setupCLITestEnv(t, 3)

	out, _, err := runCLI(t, []string{"estimate"}, env.configPath)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	requireContains(t, out, "Selected 3 of 3 items")
	requireContains(t, out, "Recommended")
	requireContains(t, out, "interactive")
}
