package diagram

import (
	"strings"
	"testing"

	"github.com/mvidal/trellis/pkg/schema"
)

func TestRenderMermaid(t *testing.T) {
	def := &schema.WorkflowDefinition{
		Name: "feed-reader",
		Nodes: []schema.WorkflowNode{
			{ID: "fetch", Action: "http.get"},
			{ID: "parse-feed", Action: "xml.parse", DependsOn: []string{"fetch"}},
		},
	}

	out := RenderMermaid(def, nil)

	if !strings.HasPrefix(out, "graph TD\n") {
		t.Errorf("expected flowchart header, got %q", out)
	}
	for _, want := range []string{
		`fetch["fetch: http.get"]`,
		`parse_feed["parse-feed: xml.parse"]`,
		"fetch --> parse_feed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "classDef") {
		t.Error("no status classes without a result")
	}
}

func TestRenderMermaidWithStatus(t *testing.T) {
	def := &schema.WorkflowDefinition{
		Name: "wf",
		Nodes: []schema.WorkflowNode{
			{ID: "a", Action: "x"},
			{ID: "b", Action: "x", DependsOn: []string{"a"}},
			{ID: "c", Action: "x", DependsOn: []string{"b"}},
		},
	}
	result := &schema.ExecutionResult{
		Nodes: []schema.NodeExecution{
			{NodeID: "a", Status: schema.NodeStatusSuccess},
			{NodeID: "b", Status: schema.NodeStatusError},
		},
	}

	out := RenderMermaid(def, result)

	for _, want := range []string{
		"class a success",
		"class b error",
		"class c pending",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}
