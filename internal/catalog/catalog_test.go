package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mvidal/trellis/internal/validation"
	"github.com/mvidal/trellis/pkg/schema"
)

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	v, err := validation.NewJSONSchemaValidator()
	if err != nil {
		t.Fatalf("create validator: %v", err)
	}
	return New(v)
}

func entry(name string) *Entry {
	return &Entry{
		Definition: &schema.WorkflowDefinition{
			Name:  name,
			Nodes: []schema.WorkflowNode{{ID: "a", Action: "transform"}},
		},
	}
}

func TestCatalogRegisterAndLookup(t *testing.T) {
	c := newCatalog(t)
	if err := c.Register(entry("wf")); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := c.Lookup("wf")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Definition.Name != "wf" {
		t.Errorf("expected wf, got %q", got.Definition.Name)
	}
}

func TestCatalogLookupUnknown(t *testing.T) {
	c := newCatalog(t)

	_, err := c.Lookup("ghost")
	if err == nil {
		t.Fatal("expected error")
	}
	var ee *schema.EngineError
	if !errors.As(err, &ee) || ee.Code != schema.ErrCodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestCatalogRejectsDuplicate(t *testing.T) {
	c := newCatalog(t)
	if err := c.Register(entry("wf")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := c.Register(entry("wf")); err == nil {
		t.Fatal("expected duplicate error")
	}
}

func TestCatalogRejectsInvalidDefinition(t *testing.T) {
	c := newCatalog(t)
	bad := &Entry{Definition: &schema.WorkflowDefinition{Name: "bad"}}
	if err := c.Register(bad); err == nil {
		t.Fatal("expected validation error for workflow without nodes")
	}
}

func TestCatalogListSortedAndScheduled(t *testing.T) {
	c := newCatalog(t)
	e1 := entry("zeta")
	e2 := entry("alpha")
	e2.Schedule = "*/5 * * * *"
	for _, e := range []*Entry{e1, e2} {
		if err := c.Register(e); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	list := c.List()
	if list[0].Definition.Name != "alpha" || list[1].Definition.Name != "zeta" {
		t.Errorf("expected sorted list, got %v, %v", list[0].Definition.Name, list[1].Definition.Name)
	}

	scheduled := c.Scheduled()
	if len(scheduled) != 1 || scheduled[0].Definition.Name != "alpha" {
		t.Errorf("expected only alpha scheduled, got %v", scheduled)
	}
}

func TestCatalogLoadDir(t *testing.T) {
	dir := t.TempDir()

	full := `{"definition":{"name":"wrapped","nodes":[{"id":"a","action":"transform"}]},"default_query":"hello","schedule":"0 * * * *"}`
	bare := `{"name":"bare","nodes":[{"id":"a","action":"transform"}]}`
	if err := os.WriteFile(filepath.Join(dir, "wrapped.json"), []byte(full), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bare.json"), []byte(bare), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newCatalog(t)
	if err := c.LoadDir(dir); err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 workflows, got %d", c.Len())
	}

	wrapped, err := c.Lookup("wrapped")
	if err != nil {
		t.Fatalf("lookup wrapped: %v", err)
	}
	if wrapped.DefaultQuery != "hello" || wrapped.Schedule != "0 * * * *" {
		t.Errorf("unexpected entry: %+v", wrapped)
	}
}

func TestCatalogLoadDirMissing(t *testing.T) {
	c := newCatalog(t)
	if err := c.LoadDir(filepath.Join(t.TempDir(), "nope")); err != nil {
		t.Fatalf("missing dir must not error: %v", err)
	}
}
