package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/policyhub/pkg/config"
)

func TestConfigError(t *testing.T) {
	err := NewConfigError("server.listen_address", "missing required field")
	assert.Equal(t, "config error in server.listen_address: missing required field", err.Error())
}

func TestCommandError(t *testing.T) {
	underlying := errors.New("underlying error")
	err := NewCommandError("run", underlying)

	assert.Equal(t, "command run failed: underlying error", err.Error())
	assert.ErrorIs(t, err, underlying)
}

func TestConfigErrors(t *testing.T) {
	verr := config.ValidationError{Errors: []config.FieldError{
		{Field: "server.listen_address", Message: "invalid"},
		{Field: "seed.paths", Message: "required when watch is enabled"},
	}}

	errs := ConfigErrors(fmt.Errorf("load: %w", verr))
	require.Len(t, errs, 2)
	assert.Equal(t, "seed.paths", errs[1].Field)

	assert.Nil(t, ConfigErrors(errors.New("file not found")))
}
