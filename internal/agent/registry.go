package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// HandlerFunc executes one registered action. Handlers may block (the
// verification-code fetch polls a remote mailbox); they must honor ctx so the
// run's time budget can unwind them promptly. The returned string becomes the
// step's recorded outcome.
type HandlerFunc func(ctx context.Context, args map[string]any) (string, error)

// ParamSpec declares one action parameter for schema validation and for the
// catalog text the model reads.
type ParamSpec struct {
	Name        string
	Type        string // "string", "number" or "bool"
	Description string
	Required    bool
}

// ActionSpec is one registered capability: a name, a natural-language
// description the model sees in its catalog, a parameter schema, and the
// handler invoked on dispatch. Specs are immutable during a run.
type ActionSpec struct {
	Name        string
	Description string
	Params      []ParamSpec
	Handler     HandlerFunc
}

// nativeCatalog describes the closed set of browser actions the loop executes
// directly, in the same catalog format as registered actions.
const nativeCatalog = `Available actions:
- navigate(url: string) -- load the given URL
- click(selector: string) -- click the element matching the CSS selector
- type(selector: string, text: string) -- clear the field and type text into it
- scroll(direction: string) -- scroll the page "up" or "down"
- wait(seconds: number) -- pause for the given number of seconds
- upload(selector: string, path: string) -- set a file on the matching file input
- press_enter(selector: string) -- focus the element and press Enter to submit
- done(payload: object, text: string) -- terminal: report the task finished with a result`

// Registry maps action names to specs. All registration happens before a run
// begins; lookups during a run are read-only.
type Registry struct {
	specs map[string]ActionSpec
}

// NewRegistry returns an empty registry. Native browser actions are always
// available and need no registration.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]ActionSpec)}
}

// Register validates and stores a spec. Duplicate names and collisions with
// native action names are startup errors, never silent overwrites.
func (r *Registry) Register(spec ActionSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("action spec requires a name")
	}
	if spec.Handler == nil {
		return fmt.Errorf("action %q requires a handler", spec.Name)
	}
	if isNativeAction(spec.Name) || spec.Name == "done" {
		return fmt.Errorf("action %q collides with a native action", spec.Name)
	}
	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("action %q is already registered", spec.Name)
	}
	for _, p := range spec.Params {
		switch p.Type {
		case "string", "number", "bool":
		default:
			return fmt.Errorf("action %q parameter %q has unknown type %q", spec.Name, p.Name, p.Type)
		}
	}
	r.specs[spec.Name] = spec
	return nil
}

// Lookup returns the spec for a registered action name.
func (r *Registry) Lookup(name string) (ActionSpec, bool) {
	spec, ok := r.specs[name]
	return spec, ok
}

// ValidateArgs checks the model-supplied arguments against the spec's schema.
// A failure here is a recoverable step error, not a run failure.
func (s ActionSpec) ValidateArgs(args map[string]any) error {
	for _, p := range s.Params {
		v, present := args[p.Name]
		if !present {
			if p.Required {
				return fmt.Errorf("action %q is missing required parameter %q", s.Name, p.Name)
			}
			continue
		}
		switch p.Type {
		case "string":
			if _, ok := v.(string); !ok {
				return fmt.Errorf("action %q parameter %q must be a string", s.Name, p.Name)
			}
		case "number":
			switch v.(type) {
			case float64, int, int64:
			default:
				return fmt.Errorf("action %q parameter %q must be a number", s.Name, p.Name)
			}
		case "bool":
			if _, ok := v.(bool); !ok {
				return fmt.Errorf("action %q parameter %q must be a boolean", s.Name, p.Name)
			}
		}
	}
	return nil
}

// Catalog renders the full action list for the prompt: native browser actions
// followed by registered custom actions in name order.
func (r *Registry) Catalog() string {
	var b strings.Builder
	b.WriteString(nativeCatalog)

	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := r.specs[name]
		params := make([]string, 0, len(spec.Params))
		for _, p := range spec.Params {
			decl := p.Name + ": " + p.Type
			if !p.Required {
				decl += "?"
			}
			params = append(params, decl)
		}
		fmt.Fprintf(&b, "\n- %s(%s) -- %s", spec.Name, strings.Join(params, ", "), spec.Description)
	}
	return b.String()
}

func isNativeAction(name string) bool {
	switch name {
	case "navigate", "click", "type", "scroll", "wait", "upload", "press_enter":
		return true
	}
	return false
}
