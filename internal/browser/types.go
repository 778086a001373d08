// Package browser provides the headless browser session the agent drives.
package browser

import (
	"context"
	"time"
)

// ActionKind enumerates the native browser operations. The set is closed;
// anything beyond it reaches the agent through its action registry instead.
type ActionKind string

const (
	ActionNavigate   ActionKind = "navigate"
	ActionClick      ActionKind = "click"
	ActionType       ActionKind = "type"
	ActionScroll     ActionKind = "scroll"
	ActionWait       ActionKind = "wait"
	ActionUpload     ActionKind = "upload"
	ActionPressEnter ActionKind = "press_enter"
)

// Action is one concrete browser operation with its parameters resolved.
type Action struct {
	Kind     ActionKind
	URL      string        // navigate
	Selector string        // click, type, upload
	Text     string        // type
	FilePath string        // upload
	Dir      string        // scroll: "up" or "down"
	Duration time.Duration // wait
}

// ActionResult reports the outcome of a single Action.
type ActionResult struct {
	OK    bool
	Error string
}

// Observation is the page state captured before each decision step: a
// rendered screenshot plus a structural outline of interactive elements.
type Observation struct {
	URL           string
	Title         string
	ScreenshotPNG []byte
	Outline       string
	CapturedAt    time.Time
}

// Session is the opaque capability the control loop operates. Failures of
// individual actions surface as ActionResult errors; an error return means
// the session itself is unusable.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Act(ctx context.Context, action Action) ActionResult
	Observe(ctx context.Context) (Observation, error)
	Close(ctx context.Context) error
}
