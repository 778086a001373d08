package agent

import "strings"

// Vault holds a task's sensitive values behind named placeholders. The model
// reasons over {placeholder} tokens; Resolve substitutes real values only at
// the point of browser interaction, and Scrub reverses any leak so secrets
// never reach a persisted transcript or log line in plaintext.
type Vault struct {
	secrets map[string]string
}

// NewVault builds a vault over a placeholder -> secret map. A nil map yields
// a vault that passes text through unchanged.
func NewVault(secrets map[string]string) *Vault {
	return &Vault{secrets: secrets}
}

// Resolve replaces every {name} token with its secret value.
func (v *Vault) Resolve(s string) string {
	for name, secret := range v.secrets {
		s = strings.ReplaceAll(s, "{"+name+"}", secret)
	}
	return s
}

// Scrub replaces any plaintext secret with its {name} token. Applied to every
// outcome string before it is recorded or logged.
func (v *Vault) Scrub(s string) string {
	for name, secret := range v.secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, "{"+name+"}")
	}
	return s
}
