package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"mercator-hq/policyhub/pkg/policy"
)

// MaxFileSize is the largest seed file the loader will read.
const MaxFileSize = 1 << 20

// Result is the merged content of every seed file.
type Result struct {
	// Policies is the merged mapping, later files winning on duplicates.
	Policies map[string]policy.State

	// Sources records which file supplied each policy.
	Sources map[string]string

	// Files lists the files that loaded successfully, in load order.
	Files []string

	// Failed lists the files that were skipped because they were invalid.
	Failed []string
}

// Loader expands seed patterns and decodes the matching files.
type Loader struct {
	patterns []string
	strict   bool
	logger   *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithStrict makes any invalid file fail the whole load.
func WithStrict(strict bool) LoaderOption {
	return func(l *Loader) {
		l.strict = strict
	}
}

// WithLoaderLogger sets the loader's logger.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a loader for the given doublestar patterns. Patterns are
// validated up front.
func NewLoader(patterns []string, opts ...LoaderOption) (*Loader, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePathPattern(p) {
			return nil, &LoadError{FilePath: p, Message: "invalid glob pattern"}
		}
	}
	if _, err := compiledSchema(); err != nil {
		return nil, err
	}

	l := &Loader{
		patterns: slices.Clone(patterns),
		logger:   slog.Default().With("component", "policy.seed"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Patterns returns the configured patterns.
func (l *Loader) Patterns() []string {
	return slices.Clone(l.patterns)
}

// Files expands the patterns into a sorted, de-duplicated file list.
// Literal paths that do not exist are errors; patterns matching nothing are
// not.
func (l *Loader) Files() ([]string, error) {
	var errs ErrorList
	seen := make(map[string]struct{})
	var files []string

	for _, pattern := range l.patterns {
		if !hasMeta(pattern) {
			info, err := os.Stat(pattern)
			if err != nil {
				errs.Add(&LoadError{FilePath: pattern, Message: "cannot stat file", Cause: err})
				continue
			}
			if info.IsDir() {
				errs.Add(&LoadError{FilePath: pattern, Message: "is a directory, use a glob such as dir/*.yaml"})
				continue
			}
			add(seen, &files, pattern)
			continue
		}

		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			errs.Add(&LoadError{FilePath: pattern, Message: "glob failed", Cause: err})
			continue
		}
		if len(matches) == 0 {
			l.logger.Warn("seed pattern matched no files", "pattern", pattern)
		}
		for _, m := range matches {
			add(seen, &files, m)
		}
	}

	slices.Sort(files)
	return files, errs.ToError()
}

func add(seen map[string]struct{}, files *[]string, path string) {
	path = filepath.Clean(path)
	if _, ok := seen[path]; ok {
		return
	}
	seen[path] = struct{}{}
	*files = append(*files, path)
}

// Load reads every matching file and merges them in file order. In strict
// mode any file error fails the load and the returned result is nil.
// Otherwise bad files are logged and skipped, and their errors are returned
// alongside a usable result.
func (l *Loader) Load(ctx context.Context) (*Result, error) {
	var errs ErrorList

	files, err := l.Files()
	if err != nil {
		if l.strict {
			return nil, err
		}
		errs.Add(err)
	}

	res := &Result{
		Policies: make(map[string]policy.State),
		Sources:  make(map[string]string),
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		states, err := l.LoadFile(path)
		if err != nil {
			if l.strict {
				return nil, err
			}
			l.logger.Warn("skipping invalid seed file", "file", path, "error", err)
			errs.Add(err)
			res.Failed = append(res.Failed, path)
			continue
		}

		for _, id := range sortedIDs(states) {
			if prev, dup := res.Sources[id]; dup {
				l.logger.Warn("policy seeded by more than one file, later file wins",
					"policy_id", id,
					"previous_file", prev,
					"file", path,
				)
			}
			res.Policies[id] = states[id]
			res.Sources[id] = path
		}
		res.Files = append(res.Files, path)
	}

	l.logger.Debug("seed files loaded",
		"files", len(res.Files),
		"policies", len(res.Policies),
		"errors", len(errs.Errors),
	)

	return res, flatten(errs).ToError()
}

// LoadFile reads, validates and decodes a single seed file.
func (l *Loader) LoadFile(path string) (map[string]policy.State, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "cannot open file", Cause: err}
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "cannot read file", Cause: err}
	}
	if len(data) > MaxFileSize {
		return nil, &LoadError{FilePath: path, Message: fmt.Sprintf("file exceeds %d bytes", MaxFileSize)}
	}

	return Parse(path, data)
}

// Parse validates and decodes seed content. name is used in errors only.
func Parse(name string, data []byte) (map[string]policy.State, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]policy.State{}, nil
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{FilePath: name, Line: yamlErrorLine(err), Message: yamlErrorMessage(err), Cause: err}
	}
	if raw == nil {
		return map[string]policy.State{}, nil
	}

	if err := validateDocument(name, raw); err != nil {
		return nil, err
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{FilePath: name, Line: yamlErrorLine(err), Message: yamlErrorMessage(err), Cause: err}
	}

	states := make(map[string]policy.State, len(doc.Policies))
	for id, entry := range doc.Policies {
		states[id] = policy.State{Mode: entry.Mode}
	}
	return states, nil
}

// validateDocument checks a decoded YAML tree against the seed schema.
func validateDocument(name string, raw any) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}

	// The validator wants JSON values, so round-trip the YAML tree. Keys such
	// as an integer policy id become strings first.
	encoded, err := json.Marshal(policy.NormalizeYAML(raw))
	if err != nil {
		return &SchemaError{FilePath: name, Message: fmt.Sprintf("document is not representable as JSON: %v", err)}
	}
	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber()
	var obj any
	if err := dec.Decode(&obj); err != nil {
		return &SchemaError{FilePath: name, Message: err.Error()}
	}

	if err := schema.Validate(obj); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return &SchemaError{FilePath: name, Message: describe(ve)}
		}
		return &SchemaError{FilePath: name, Message: err.Error()}
	}
	return nil
}

// describe flattens a validation error tree into "location: message" lines.
func describe(ve *jsonschema.ValidationError) string {
	var lines []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			lines = append(lines, fmt.Sprintf("%s: %s", loc, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(lines, "; ")
}

var yamlLineRe = regexp.MustCompile(`line (\d+)`)

func yamlErrorLine(err error) int {
	var te *yaml.TypeError
	msg := err.Error()
	if errors.As(err, &te) && len(te.Errors) > 0 {
		msg = te.Errors[0]
	}
	if m := yamlLineRe.FindStringSubmatch(msg); m != nil {
		if n, convErr := strconv.Atoi(m[1]); convErr == nil {
			return n
		}
	}
	return 0
}

func yamlErrorMessage(err error) string {
	return strings.TrimPrefix(err.Error(), "yaml: ")
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, `*?[{\`)
}

func sortedIDs(states map[string]policy.State) []string {
	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// flatten lifts nested ErrorLists so callers see one flat list.
func flatten(list ErrorList) *ErrorList {
	out := &ErrorList{}
	for _, err := range list.Errors {
		var nested *ErrorList
		if errors.As(err, &nested) && nested != nil {
			out.Errors = append(out.Errors, nested.Errors...)
			continue
		}
		out.Add(err)
	}
	return out
}
