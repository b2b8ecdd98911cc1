package main

import (
	"context"
	"testing"

	"tagpipe/internal/results"
	"tagpipe/internal/services/gemini"
	"tagpipe/internal/testsupport"
)

func TestStatusEmptyCatalog(t *testing.T) {
	env := setupCLITestEnv(t, 0)

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Catalog: 0 items")
	requireContains(t, out, "No open batch jobs.")
}

func TestStatusCountsCoverage(t *testing.T) {
	env := setupCLITestEnv(t, 3)

	store := testsupport.MustOpenStore(t, env.cfg)
	ctx := context.Background()
	if _, err := store.WriteResult(ctx, results.LabelResult{
		ItemID:   env.items[0].ID,
		Provider: gemini.Provider,
		Model:    env.cfg.Gemini.Model,
		Payload:  `{"tags":["tree"]}`,
	}); err != nil {
		t.Fatalf("WriteResult: %v", err)
	}

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Catalog: 3 items, 1 covered, 2 remaining")
}

func TestTriageNoErrors(t *testing.T) {
	env := setupCLITestEnv(t, 0)

	out, _, err := runCLI(t, []string{"triage"}, env.configPath)
	if err != nil {
		t.Fatalf("triage: %v", err)
	}
	requireContains(t, out, "No recorded errors.")
}

func TestTriageGroupsRecordedErrors(t *testing.T) {
	env := setupCLITestEnv(t, 1)

	store := testsupport.MustOpenStore(t, env.cfg)
	if err := store.WriteError(context.Background(), results.LabelError{
		ItemID:     env.items[0].ID,
		Provider:   gemini.Provider,
		Model:      env.cfg.Gemini.Model,
		Kind:       results.KindNetwork,
		Diagnostic: "dial tcp: lookup generativelanguage.googleapis.com: no such host",
	}); err != nil {
		t.Fatalf("WriteError: %v", err)
	}

	out, _, err := runCLI(t, []string{"triage", "--samples"}, env.configPath)
	if err != nil {
		t.Fatalf("triage: %v", err)
	}
	requireContains(t, out, "1 errors: 0 resolved by later results, 1 actionable")
	requireContains(t, out, "Network")
	requireContains(t, out, "retry_when_network_available")
	requireContains(t, out, "no such host")
}
