// Package llm is the model gateway: it abstracts heterogeneous vision-capable
// backends behind a single propose-next-action contract.
package llm

import (
	"errors"

	"github.com/revosurge/adwatch/internal/browser"
)

// ErrGateway marks failures of the gateway itself (backend unreachable or
// persistently malformed after bounded retry). These are fatal to a run,
// unlike the model legitimately choosing an invalid action.
var ErrGateway = errors.New("model gateway failure")

// ActionProposal is the model's chosen next step: either a native browser
// action or a registered custom action, identified by name.
type ActionProposal struct {
	Name      string         `json:"name"`
	Args      map[string]any `json:"args,omitempty"`
	Thought   string         `json:"thought,omitempty"`
	Rationale string         `json:"rationale,omitempty"`
}

// DoneDirective carries the model's explicit completion signal together with
// whatever structured payload it supplied. Completion is never inferred from
// page content.
type DoneDirective struct {
	Payload map[string]any `json:"payload,omitempty"`
	Text    string         `json:"text,omitempty"`
}

// Decision is the normalized outcome of one gateway round trip. Exactly one
// of Action or Done is set; when a backend returns both, Done wins.
type Decision struct {
	Action *ActionProposal
	Done   *DoneDirective
}

// HistoryEntry is a compact rendering of one prior step for the prompt's
// transcript window.
type HistoryEntry struct {
	Step    int
	Action  string
	Outcome string
}

// ProposeRequest bundles everything one decision needs.
type ProposeRequest struct {
	Instructions string
	Observation  browser.Observation
	Catalog      string
	History      []HistoryEntry
}
