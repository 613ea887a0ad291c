package seed

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"mercator-hq/policyhub/pkg/policy"
	"mercator-hq/policyhub/pkg/policy/registry"
)

// Seeder applies seed files to a registry and keeps track of which entries
// it owns, so a reload can retract entries whose files went away without
// touching entries written by anyone else.
type Seeder struct {
	registry *registry.Registry
	loader   *Loader
	logger   *slog.Logger

	// mu serializes Seed and Reload.
	mu      sync.Mutex
	seeded  map[string]policy.State
	sources map[string]string
}

// NewSeeder creates a seeder writing into reg.
func NewSeeder(reg *registry.Registry, loader *Loader, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		registry: reg,
		loader:   loader,
		logger:   logger.With("component", "policy.seeder"),
		seeded:   make(map[string]policy.State),
		sources:  make(map[string]string),
	}
}

// Seed performs the initial load. Every seeded entry is written, overriding
// whatever the registry held (for example a restored journal state).
func (s *Seeder) Seed(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.loader.Load(ctx)
	if res == nil {
		return nil, err
	}

	if applyErr := s.apply(res, true); applyErr != nil {
		return nil, applyErr
	}
	s.logger.Info("policies seeded",
		"files", len(res.Files),
		"policies", len(res.Policies),
		"version", s.registry.Snapshot().Version(),
	)
	return res, err
}

// Reload re-reads the seed files and reconciles the registry with them in
// one notification. Entries seeded before and now missing are removed;
// new or changed entries are set; unchanged seeded entries are left alone so
// that writes made since the last load survive. Entries whose file is
// currently invalid are kept as they were.
//
// A load that fails in strict mode changes nothing.
func (s *Seeder) Reload(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.loader.Load(ctx)
	if res == nil {
		s.logger.Error("seed reload failed, registry unchanged", "error", err)
		return nil, err
	}

	before := s.registry.Snapshot().Version()
	if applyErr := s.apply(res, false); applyErr != nil {
		return nil, applyErr
	}
	after := s.registry.Snapshot().Version()

	s.logger.Info("policies reloaded",
		"files", len(res.Files),
		"policies", len(res.Policies),
		"published", after != before,
		"version", after,
	)
	return res, err
}

// Seeded returns the ids currently owned by the seeder.
func (s *Seeder) Seeded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.seeded))
}

// apply writes res into the registry. With force every entry is written;
// otherwise only entries that differ from the previous seed.
func (s *Seeder) apply(res *Result, force bool) error {
	nextSeeded := maps.Clone(res.Policies)
	nextSources := maps.Clone(res.Sources)

	// Entries from files that failed to load stay owned and untouched.
	for id, st := range s.seeded {
		if _, ok := nextSeeded[id]; ok {
			continue
		}
		if slices.Contains(res.Failed, s.sources[id]) {
			nextSeeded[id] = st
			nextSources[id] = s.sources[id]
		}
	}

	err := s.registry.Apply(func(tx *registry.Txn) error {
		for id := range s.seeded {
			if _, keep := nextSeeded[id]; !keep {
				tx.Remove(id)
			}
		}
		for _, id := range sortedIDs(res.Policies) {
			st := res.Policies[id]
			prev, wasSeeded := s.seeded[id]
			if !force && wasSeeded && prev == st {
				continue
			}
			if cur, ok := tx.Get(id); ok && cur == st {
				continue
			}
			if err := tx.Set(id, st); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var regErr *registry.RegistryError
		if errors.As(err, &regErr) {
			s.logger.Error("seed rejected by registry", "policy_id", regErr.PolicyID, "error", err)
		}
		return err
	}

	s.seeded = nextSeeded
	s.sources = nextSources
	return nil
}
