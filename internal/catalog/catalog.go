package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mvidal/trellis/internal/validation"
	"github.com/mvidal/trellis/pkg/schema"
)

// Entry is one registered workflow: its definition, the default query used
// when a trigger supplies none, and an optional cron schedule.
type Entry struct {
	Definition   *schema.WorkflowDefinition `json:"definition"`
	DefaultQuery string                     `json:"default_query,omitempty"`
	Schedule     string                     `json:"schedule,omitempty"`
}

// Catalog holds the workflows available to run. Definitions are validated on
// registration so a run never starts from a malformed definition. Safe for
// concurrent use.
type Catalog struct {
	validator validation.Validator

	mu      sync.RWMutex
	entries map[string]*Entry
}

// New creates an empty catalog backed by the given validator.
func New(validator validation.Validator) *Catalog {
	return &Catalog{
		validator: validator,
		entries:   make(map[string]*Entry),
	}
}

// Register validates and adds an entry, keyed by the workflow name.
func (c *Catalog) Register(entry *Entry) error {
	if entry == nil || entry.Definition == nil {
		return schema.NewError(schema.ErrCodeValidation, "catalog entry has no definition")
	}
	if err := c.validator.ValidateDefinition(entry.Definition); err != nil {
		return err
	}

	name := entry.Definition.Name

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[name]; exists {
		return schema.NewErrorf(schema.ErrCodeValidation, "workflow %q already registered", name)
	}
	c.entries[name] = entry
	return nil
}

// Lookup returns the entry for a workflow name.
func (c *Catalog) Lookup(name string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", name)
	}
	return entry, nil
}

// List returns all entries sorted by workflow name.
func (c *Catalog) List() []*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Definition.Name < entries[j].Definition.Name
	})
	return entries
}

// Scheduled returns the entries that carry a cron schedule, sorted by name.
func (c *Catalog) Scheduled() []*Entry {
	var scheduled []*Entry
	for _, e := range c.List() {
		if e.Schedule != "" {
			scheduled = append(scheduled, e)
		}
	}
	return scheduled
}

// Len returns the number of registered workflows.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// LoadDir registers every *.json entry file found in dir. A file holds one
// Entry; a file holding a bare WorkflowDefinition (no "definition" key) is
// accepted as an entry with no default query or schedule. A missing directory
// is not an error.
func (c *Catalog) LoadDir(dir string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read catalog dir %s: %w", dir, err)
	}

	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, f.Name())
		entry, err := loadEntry(path)
		if err != nil {
			return err
		}
		if err := c.Register(entry); err != nil {
			return fmt.Errorf("register %s: %w", path, err)
		}
	}
	return nil
}

func loadEntry(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if entry.Definition != nil {
		return &entry, nil
	}

	// Bare workflow definition.
	var def schema.WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &Entry{Definition: &def}, nil
}
