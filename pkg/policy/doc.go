// Package policy defines the data model shared by the policy registry, the
// template catalog, the seed loader and the change journal.
//
// A policy is identified by a string key and carries a State whose Mode is one
// of ModeDisabled, ModeReadOnly or ModeFull. Templates bundle Providers, and each
// Provider holds a list of opaque Permission values whose structure is owned by
// whoever consumes them.
//
// Validation lives at the boundary: ParseMode, State.Validate and
// Template.Validate report typed errors (*ModeError, *TemplateError) that
// callers can match with errors.As.
package policy
