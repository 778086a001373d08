package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandler(ctx context.Context, args map[string]any) (string, error) {
	return "ok", nil
}

func TestRegistry_RegisterValidation(t *testing.T) {
	tests := []struct {
		name    string
		spec    ActionSpec
		wantErr string
	}{
		{
			name:    "missing name",
			spec:    ActionSpec{Handler: noopHandler},
			wantErr: "requires a name",
		},
		{
			name:    "missing handler",
			spec:    ActionSpec{Name: "fetch_code"},
			wantErr: "requires a handler",
		},
		{
			name:    "native collision",
			spec:    ActionSpec{Name: "click", Handler: noopHandler},
			wantErr: "collides",
		},
		{
			name:    "done collision",
			spec:    ActionSpec{Name: "done", Handler: noopHandler},
			wantErr: "collides",
		},
		{
			name: "bad param type",
			spec: ActionSpec{
				Name:    "fetch_code",
				Handler: noopHandler,
				Params:  []ParamSpec{{Name: "n", Type: "integer"}},
			},
			wantErr: "unknown type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().Register(tt.spec)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRegistry_DuplicateRegistrationFails(t *testing.T) {
	reg := NewRegistry()
	spec := ActionSpec{Name: "fetch_code", Handler: noopHandler}
	require.NoError(t, reg.Register(spec))
	err := reg.Register(spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestActionSpec_ValidateArgs(t *testing.T) {
	spec := ActionSpec{
		Name:    "fetch_code",
		Handler: noopHandler,
		Params: []ParamSpec{
			{Name: "recipient", Type: "string", Required: true},
			{Name: "timeout", Type: "number"},
			{Name: "fresh", Type: "bool"},
		},
	}

	assert.NoError(t, spec.ValidateArgs(map[string]any{"recipient": "a@b.c"}))
	assert.NoError(t, spec.ValidateArgs(map[string]any{"recipient": "a@b.c", "timeout": 30.0, "fresh": true}))

	err := spec.ValidateArgs(map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required")

	err = spec.ValidateArgs(map[string]any{"recipient": 42})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a string")

	err = spec.ValidateArgs(map[string]any{"recipient": "a@b.c", "timeout": "soon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a number")
}

func TestRegistry_CatalogListsNativeAndRegisteredActions(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(ActionSpec{
		Name:        "get_verification_code",
		Description: "fetch the emailed verification code",
		Handler:     noopHandler,
	}))

	catalog := reg.Catalog()
	for _, native := range []string{"navigate(", "click(", "type(", "scroll(", "wait(", "upload(", "press_enter(", "done("} {
		assert.Contains(t, catalog, native)
	}
	assert.Contains(t, catalog, "get_verification_code")
	assert.Contains(t, catalog, "fetch the emailed verification code")
}
