package triage_test

import (
	"testing"

	"tagpipe/internal/results"
	"tagpipe/internal/triage"
)

func triaged(kind results.ErrorKind, diagnostic string, resolved bool) results.TriagedError {
	return results.TriagedError{
		LabelError:    results.LabelError{ItemID: "i", Kind: kind, Diagnostic: diagnostic},
		ResolvedAfter: resolved,
	}
}

func TestActionForKinds(t *testing.T) {
	cases := []struct {
		kind results.ErrorKind
		want triage.Action
	}{
		{results.KindNetwork, triage.ActionRetryWhenNetwork},
		{results.KindQuota, triage.ActionWaitForQuota},
		{results.KindContentBlock, triage.ActionUseFallbackModel},
		{results.KindMalformedResponse, triage.ActionInspectPrompt},
		{results.KindPreflightUnresolved, triage.ActionRepairMedia},
		{results.KindIngestParseFailure, triage.ActionInspectResponse},
		{results.ErrorKind("mystery"), triage.ActionManual},
	}
	for _, tc := range cases {
		if got := triage.ActionFor(tc.kind, false); got != tc.want {
			t.Errorf("ActionFor(%s) = %s, want %s", tc.kind, got, tc.want)
		}
	}
	if got := triage.ActionFor(results.KindNetwork, true); got != triage.ActionHistoricalResolved {
		t.Errorf("resolved errors must map to historical, got %s", got)
	}
}

func TestClassifyLegacyDiagnostics(t *testing.T) {
	cases := []struct {
		diagnostic string
		want       results.ErrorKind
	}{
		{"finish=RECITATION no json payload", results.KindContentBlock},
		{"dial tcp: lookup example.com: no such host", results.KindNetwork},
		{"context deadline exceeded", results.KindNetwork},
		{"gemini request: http 429: resource exhausted", results.KindQuota},
		{"media missing_file (kind=thumb)", results.KindPreflightUnresolved},
		{"no json object found (payload snippet: sorry)", results.KindMalformedResponse},
		{"something entirely else", results.ErrorKind("unknown")},
	}
	for _, tc := range cases {
		got := triage.Classify(results.LabelError{Diagnostic: tc.diagnostic})
		if got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.diagnostic, got, tc.want)
		}
	}

	// A persisted kind always wins over text matching.
	got := triage.Classify(results.LabelError{Kind: results.KindQuota, Diagnostic: "no such host"})
	if got != results.KindQuota {
		t.Errorf("persisted kind should win, got %s", got)
	}
}

func TestBuildGroupsAndOrders(t *testing.T) {
	errs := []results.TriagedError{
		triaged(results.KindNetwork, "no such host", false),
		triaged(results.KindNetwork, "no such host", false),
		triaged(results.KindNetwork, "no such host", true),
		triaged(results.KindMalformedResponse, "no json", false),
		triaged(results.KindContentBlock, "finish=RECITATION", true),
	}

	report := triage.Build(errs)
	if report.Total != 5 || report.Resolved != 2 || report.Actionable != 3 {
		t.Fatalf("unexpected totals: %+v", report)
	}
	if len(report.Groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(report.Groups))
	}

	first := report.Groups[0]
	if first.Kind != results.KindNetwork || first.Actionable() != 2 || first.Resolved != 1 {
		t.Fatalf("unexpected leading group: %+v", first)
	}
	if len(first.Samples) != 2 {
		t.Fatalf("samples should exclude resolved errors: %d", len(first.Samples))
	}

	// A fully resolved group reports the historical action.
	for _, g := range report.Groups {
		if g.Kind == results.KindContentBlock && g.Action != triage.ActionHistoricalResolved {
			t.Fatalf("fully resolved group should be historical: %+v", g)
		}
	}
}

func TestBuildSampleCap(t *testing.T) {
	var errs []results.TriagedError
	for i := 0; i < 10; i++ {
		errs = append(errs, triaged(results.KindNetwork, "no such host", false))
	}
	report := triage.Build(errs)
	if len(report.Groups[0].Samples) != 3 {
		t.Fatalf("samples should cap at 3, got %d", len(report.Groups[0].Samples))
	}
}

func TestGroupHeading(t *testing.T) {
	g := triage.Group{Kind: results.KindMalformedResponse}
	if got := g.Heading(); got != "Malformed Response" {
		t.Fatalf("Heading() = %q", got)
	}
}
