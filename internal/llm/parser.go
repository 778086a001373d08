package llm

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/kaptinlin/jsonrepair"
)

// rawDecision mirrors the JSON shape every backend is instructed to produce.
type rawDecision struct {
	Thought   string          `json:"thought"`
	Rationale string          `json:"rationale"`
	Action    *ActionProposal `json:"action"`
	Done      *DoneDirective  `json:"done"`
}

// A regex to robustly extract a JSON object from a markdown code block.
var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// parseDecision extracts a Decision from a backend response, tolerating
// markdown fences, leading prose, and minor JSON damage (trailing commas,
// single quotes) via jsonrepair. A response carrying both an action and a
// done directive resolves to done.
func parseDecision(response string) (Decision, error) {
	response = strings.TrimSpace(response)

	var candidate string
	if matches := jsonBlockRegex.FindStringSubmatch(response); len(matches) > 1 {
		candidate = strings.TrimSpace(matches[1])
	} else {
		first := strings.Index(response, "{")
		last := strings.LastIndex(response, "}")
		if first != -1 && last > first {
			candidate = response[first : last+1]
		} else {
			candidate = response
		}
	}
	if candidate == "" {
		return Decision{}, fmt.Errorf("no JSON object found in model response")
	}

	var raw rawDecision
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(candidate)
		if repairErr != nil {
			return Decision{}, fmt.Errorf("failed to unmarshal model response: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
			return Decision{}, fmt.Errorf("failed to unmarshal repaired model response: %w", err)
		}
	}

	// Done is exclusive and takes precedence over a simultaneous action.
	if raw.Done != nil {
		return Decision{Done: raw.Done}, nil
	}
	if raw.Action == nil {
		return Decision{}, fmt.Errorf("model response carries neither an action nor a done directive")
	}
	if raw.Action.Name == "" {
		return Decision{}, fmt.Errorf("model action is missing the required 'name' field")
	}
	if raw.Action.Thought == "" {
		raw.Action.Thought = raw.Thought
	}
	if raw.Action.Rationale == "" {
		raw.Action.Rationale = raw.Rationale
	}
	return Decision{Action: raw.Action}, nil
}
