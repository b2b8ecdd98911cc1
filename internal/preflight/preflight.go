package preflight

import (
	"context"
	"fmt"
	"log/slog"

	"tagpipe/internal/catalog"
	"tagpipe/internal/logging"
	"tagpipe/internal/repair"
	"tagpipe/internal/results"
)

// ErrorRecorder persists unresolved preflight outcomes.
type ErrorRecorder interface {
	WriteError(ctx context.Context, labelErr results.LabelError) error
}

// ItemState pairs a candidate with its media classification.
type ItemState struct {
	Item  catalog.Item
	State catalog.MediaState
}

// Report summarizes one gate pass.
type Report struct {
	Ready      []catalog.Item
	Unresolved []ItemState
	Repaired   int
	// States counts the final classification of every candidate.
	States map[catalog.MediaState]int
}

// Gate checks candidates' media and filters a run down to labelable items.
type Gate struct {
	kind     catalog.ImageKind
	provider string
	repairer repair.Runner
	recorder ErrorRecorder
	logger   *slog.Logger
}

// New constructs a gate. repairer may be nil when repair is disabled.
func New(kind catalog.ImageKind, provider string, repairer repair.Runner, recorder ErrorRecorder, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Gate{
		kind:     kind,
		provider: provider,
		repairer: repairer,
		recorder: recorder,
		logger:   logger.With(logging.String(logging.FieldComponent, "preflight")),
	}
}

// Run classifies items, attempts repair on the broken ones, and records
// anything still unreadable as unresolved. The returned report preserves
// candidate order within Ready.
func (g *Gate) Run(ctx context.Context, items []catalog.Item) (Report, error) {
	report := Report{States: make(map[catalog.MediaState]int)}

	var broken []ItemState
	for _, item := range items {
		state := catalog.StateOf(item, g.kind)
		switch state {
		case catalog.StateMissingPath, catalog.StateMissingFile:
			broken = append(broken, ItemState{Item: item, State: state})
		}
		// Ready items need nothing; unsupported formats are recorded
		// below, never handed to the repair command.
	}

	if len(broken) > 0 && g.repairer != nil {
		ids := make([]string, 0, len(broken))
		for _, b := range broken {
			ids = append(ids, b.Item.ID)
		}
		g.logger.Info("attempting media repair", logging.Int("items", len(ids)))
		if err := g.repairer.Run(ctx, ids); err != nil {
			// Repair is best-effort; a failed command just means
			// the recheck below sees the same broken files.
			g.logger.Warn("media repair failed", logging.Error(err))
		}
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		state := catalog.StateOf(item, g.kind)
		report.States[state]++
		if state == catalog.StateReady {
			report.Ready = append(report.Ready, item)
			continue
		}
		report.Unresolved = append(report.Unresolved, ItemState{Item: item, State: state})
		if g.recorder != nil {
			labelErr := results.LabelError{
				ItemID:     item.ID,
				Provider:   g.provider,
				Kind:       results.KindPreflightUnresolved,
				Diagnostic: diagnosticFor(item, state, g.kind),
			}
			if err := g.recorder.WriteError(ctx, labelErr); err != nil {
				return report, fmt.Errorf("preflight: record unresolved %s: %w", item.ID, err)
			}
		}
	}

	for _, b := range broken {
		if catalog.StateOf(b.Item, g.kind) == catalog.StateReady {
			report.Repaired++
		}
	}

	if len(report.Unresolved) > 0 || report.Repaired > 0 {
		g.logger.Info("preflight finished",
			logging.Int("ready", len(report.Ready)),
			logging.Int("repaired", report.Repaired),
			logging.Int("unresolved", len(report.Unresolved)))
	}
	return report, nil
}

func diagnosticFor(item catalog.Item, state catalog.MediaState, kind catalog.ImageKind) string {
	path := item.ImagePath(kind)
	if path == "" {
		return fmt.Sprintf("media %s (kind=%s, no path recorded)", state, kind)
	}
	return fmt.Sprintf("media %s (kind=%s, path=%s)", state, kind, path)
}
