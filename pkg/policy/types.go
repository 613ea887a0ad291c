package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Mode is the activation level of a policy.
type Mode string

const (
	// ModeDisabled turns the policy off.
	ModeDisabled Mode = "disabled"
	// ModeReadOnly exposes the policy without allowing changes through it.
	ModeReadOnly Mode = "readonly"
	// ModeFull activates the policy completely.
	ModeFull Mode = "full"
)

// Modes returns every valid mode in declaration order.
func Modes() []Mode {
	return []Mode{ModeDisabled, ModeReadOnly, ModeFull}
}

// ParseMode converts a string into a Mode. Matching is case-sensitive.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", &ModeError{Value: s}
	}
	return m, nil
}

// Valid reports whether m is one of the enumerated modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeDisabled, ModeReadOnly, ModeFull:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (m Mode) String() string {
	return string(m)
}

// UnmarshalText rejects unknown modes so that JSON and YAML decoding fail at the
// boundary instead of letting an invalid value reach the registry.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m), nil
}

// State is the current activation state of a single policy.
type State struct {
	Mode Mode `json:"mode" yaml:"mode"`
}

// Validate checks that the state holds a known mode.
func (s State) Validate() error {
	if !s.Mode.Valid() {
		return &ModeError{Value: string(s.Mode)}
	}
	return nil
}

// String returns a compact representation used in logs.
func (s State) String() string {
	return fmt.Sprintf("{mode:%s}", s.Mode)
}

// Patch is a partial change to a State. Nil fields are left untouched.
type Patch struct {
	Mode *Mode `json:"mode,omitempty" yaml:"mode,omitempty"`
}

// PatchMode is a shorthand for a patch that only changes the mode.
func PatchMode(m Mode) Patch {
	return Patch{Mode: &m}
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Mode == nil
}

// Validate checks every field present in the patch.
func (p Patch) Validate() error {
	if p.Mode != nil && !p.Mode.Valid() {
		return &ModeError{Value: string(*p.Mode)}
	}
	return nil
}

// ApplyTo returns s with the patch applied. s itself is not modified.
func (p Patch) ApplyTo(s State) State {
	if p.Mode != nil {
		s.Mode = *p.Mode
	}
	return s
}

// UnmarshalJSON decodes a patch while keeping the invalid-mode error typed.
// Unknown fields are rejected so a misspelled field is not an empty patch.
func (p *Patch) UnmarshalJSON(data []byte) error {
	var raw struct {
		Mode *string `json:"mode"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw.Mode == nil {
		p.Mode = nil
		return nil
	}
	m, err := ParseMode(*raw.Mode)
	if err != nil {
		return err
	}
	p.Mode = &m
	return nil
}
