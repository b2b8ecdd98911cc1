package triage

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"tagpipe/internal/results"
)

// Action is the suggested remedy for a group of errors.
type Action string

const (
	ActionHistoricalResolved Action = "historical_resolved"
	ActionRetryWhenNetwork   Action = "retry_when_network_available"
	ActionWaitForQuota       Action = "wait_for_quota_reset"
	ActionUseFallbackModel   Action = "use_fallback_or_alt_model"
	ActionInspectPrompt      Action = "inspect_prompt_or_parser"
	ActionRepairMedia        Action = "repair_media"
	ActionInspectResponse    Action = "inspect_api_response"
	ActionManual             Action = "manual_investigation"
)

// kindUnknown groups legacy rows whose diagnostic matched nothing.
const kindUnknown results.ErrorKind = "unknown"

const sampleLimit = 3

// ActionFor maps an error kind to its remedy. Resolved errors always map
// to the historical action regardless of kind.
func ActionFor(kind results.ErrorKind, resolved bool) Action {
	if resolved {
		return ActionHistoricalResolved
	}
	switch kind {
	case results.KindNetwork:
		return ActionRetryWhenNetwork
	case results.KindQuota:
		return ActionWaitForQuota
	case results.KindContentBlock:
		return ActionUseFallbackModel
	case results.KindMalformedResponse:
		return ActionInspectPrompt
	case results.KindPreflightUnresolved:
		return ActionRepairMedia
	case results.KindIngestParseFailure:
		return ActionInspectResponse
	default:
		return ActionManual
	}
}

// Classify returns an error's kind, deriving one from the diagnostic
// text when the row predates persisted kinds.
func Classify(e results.LabelError) results.ErrorKind {
	if e.Kind != "" {
		return e.Kind
	}
	diag := strings.ToLower(e.Diagnostic)
	switch {
	case strings.Contains(diag, "recitation"), strings.Contains(diag, "block="):
		return results.KindContentBlock
	case strings.Contains(diag, "no such host"),
		strings.Contains(diag, "dns"),
		strings.Contains(diag, "connection refused"),
		strings.Contains(diag, "connection reset"),
		strings.Contains(diag, "timeout"),
		strings.Contains(diag, "deadline exceeded"):
		return results.KindNetwork
	case strings.Contains(diag, "http 429"), strings.Contains(diag, "quota"):
		return results.KindQuota
	case strings.Contains(diag, "missing"), strings.Contains(diag, "unsupported"),
		strings.Contains(diag, "unreadable"):
		return results.KindPreflightUnresolved
	case strings.Contains(diag, "no json"), strings.Contains(diag, "parse"),
		strings.Contains(diag, "decode"):
		return results.KindMalformedResponse
	default:
		return kindUnknown
	}
}

// Group aggregates errors of one kind.
type Group struct {
	Kind     results.ErrorKind
	Action   Action
	Count    int
	Resolved int
	Samples  []results.TriagedError
}

// Actionable is how many errors in the group still need attention.
func (g Group) Actionable() int {
	return g.Count - g.Resolved
}

// Heading renders the group's kind as a human-readable title.
func (g Group) Heading() string {
	title := cases.Title(language.English)
	return title.String(strings.ReplaceAll(string(g.Kind), "_", " "))
}

// Report is a full triage pass over recorded errors.
type Report struct {
	Total      int
	Resolved   int
	Actionable int
	Groups     []Group
}

// Build groups triaged errors by kind. Groups are ordered by descending
// actionable count so the report leads with what matters; each group
// keeps a few unresolved samples for inspection.
func Build(errs []results.TriagedError) Report {
	byKind := make(map[results.ErrorKind]*Group)
	report := Report{Total: len(errs)}

	for _, e := range errs {
		kind := Classify(e.LabelError)
		group, ok := byKind[kind]
		if !ok {
			group = &Group{Kind: kind, Action: ActionFor(kind, false)}
			byKind[kind] = group
		}
		group.Count++
		if e.ResolvedAfter {
			group.Resolved++
			report.Resolved++
			continue
		}
		report.Actionable++
		if len(group.Samples) < sampleLimit {
			group.Samples = append(group.Samples, e)
		}
	}

	for _, group := range byKind {
		if group.Actionable() == 0 {
			group.Action = ActionHistoricalResolved
		}
		report.Groups = append(report.Groups, *group)
	}
	sort.Slice(report.Groups, func(i, j int) bool {
		a, b := report.Groups[i], report.Groups[j]
		if a.Actionable() != b.Actionable() {
			return a.Actionable() > b.Actionable()
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Kind < b.Kind
	})
	return report
}
