// Package catalog holds the set of policy templates known to the process.
package catalog

import (
	"crypto/sha256"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"mercator-hq/policyhub/pkg/policy"
)

// Catalog is a thread-safe in-memory store of templates keyed by ID.
// It uses copy-on-write semantics for atomic updates.
type Catalog struct {
	mu        sync.RWMutex
	templates map[string]*policy.Template
	version   string
	loadTime  time.Time
}

// New creates an empty catalog.
func New() *Catalog {
	c := &Catalog{
		templates: make(map[string]*policy.Template),
		loadTime:  time.Now(),
	}
	c.updateVersion()
	return c
}

// Register adds a template. A template with the same ID must not exist yet.
func (c *Catalog) Register(tmpl *policy.Template) error {
	if err := validate("register", tmpl); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.templates[tmpl.ID]; exists {
		return &CatalogError{
			TemplateID: tmpl.ID,
			Operation:  "register",
			Message:    "template already registered",
		}
	}

	next := maps.Clone(c.templates)
	next[tmpl.ID] = tmpl
	c.templates = next
	c.updateVersion()

	return nil
}

// RegisterMultiple adds several templates atomically: either all are added or
// none is.
func (c *Catalog) RegisterMultiple(templates []*policy.Template) error {
	if len(templates) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := maps.Clone(c.templates)
	for _, tmpl := range templates {
		if err := validate("register_multiple", tmpl); err != nil {
			return err
		}
		if _, exists := next[tmpl.ID]; exists {
			return &CatalogError{
				TemplateID: tmpl.ID,
				Operation:  "register_multiple",
				Message:    "template already registered",
			}
		}
		next[tmpl.ID] = tmpl
	}

	c.templates = next
	c.updateVersion()
	return nil
}

// Unregister removes a template by ID.
func (c *Catalog) Unregister(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.templates[id]; !ok {
		return &CatalogError{
			TemplateID: id,
			Operation:  "unregister",
			Message:    "template not found",
		}
	}

	next := maps.Clone(c.templates)
	delete(next, id)
	c.templates = next
	c.updateVersion()

	return nil
}

// Get retrieves a template by ID.
func (c *Catalog) Get(id string) (*policy.Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tmpl, ok := c.templates[id]
	return tmpl, ok
}

// GetAll returns all templates sorted by ID.
// The returned slice is a copy and will not be modified by the catalog.
func (c *Catalog) GetAll() []*policy.Template {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(c.templates))
	out := make([]*policy.Template, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.templates[id])
	}
	return out
}

// Count returns the number of templates.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.templates)
}

// Replace atomically replaces the whole template set. IDs must be unique
// within templates.
func (c *Catalog) Replace(templates []*policy.Template) error {
	if templates == nil {
		return &CatalogError{Operation: "replace", Message: "templates cannot be nil"}
	}

	next := make(map[string]*policy.Template, len(templates))
	for _, tmpl := range templates {
		if err := validate("replace", tmpl); err != nil {
			return err
		}
		if _, dup := next[tmpl.ID]; dup {
			return &CatalogError{
				TemplateID: tmpl.ID,
				Operation:  "replace",
				Message:    "duplicate template id",
			}
		}
		next[tmpl.ID] = tmpl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.templates = next
	c.loadTime = time.Now()
	c.updateVersion()

	return nil
}

// Version changes whenever templates are added, removed, or replaced.
func (c *Catalog) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.version
}

// LoadTime returns when the template set was last replaced.
func (c *Catalog) LoadTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.loadTime
}

// updateVersion must be called with the write lock held.
func (c *Catalog) updateVersion() {
	h := sha256.New()
	for _, id := range slices.Sorted(maps.Keys(c.templates)) {
		tmpl := c.templates[id]
		h.Write([]byte(tmpl.ID))
		h.Write([]byte{0})
		h.Write([]byte(tmpl.Name))
		h.Write([]byte{0})
	}
	c.version = fmt.Sprintf("%x", h.Sum(nil))[:16]
}

func validate(op string, tmpl *policy.Template) error {
	if tmpl == nil {
		return &CatalogError{Operation: op, Message: "template cannot be nil"}
	}
	if err := tmpl.Validate(); err != nil {
		return &CatalogError{TemplateID: tmpl.ID, Operation: op, Message: "invalid template", Cause: err}
	}
	return nil
}

// CatalogError represents an error that occurred during catalog operations.
type CatalogError struct {
	TemplateID string
	Operation  string
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *CatalogError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if e.TemplateID != "" {
		return fmt.Sprintf("catalog error for template %q during %s: %s", e.TemplateID, e.Operation, msg)
	}
	return fmt.Sprintf("catalog error during %s: %s", e.Operation, msg)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *CatalogError) Unwrap() error {
	return e.Cause
}
