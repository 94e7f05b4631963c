package diagram

import (
	"fmt"
	"strings"

	"github.com/mvidal/trellis/pkg/schema"
)

// RenderMermaid renders a workflow's dependency graph as a Mermaid flowchart.
// When a result is given, nodes are colored by their execution status.
func RenderMermaid(def *schema.WorkflowDefinition, result *schema.ExecutionResult) string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	if def.Name != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", def.Name))
	}

	statuses := statusByNode(result)

	for i := range def.Nodes {
		node := &def.Nodes[i]
		b.WriteString(fmt.Sprintf("    %s[%q]\n", safeID(node.ID), node.ID+": "+node.Action))
	}

	for i := range def.Nodes {
		node := &def.Nodes[i]
		for _, dep := range node.DependsOn {
			b.WriteString(fmt.Sprintf("    %s --> %s\n", safeID(dep), safeID(node.ID)))
		}
	}

	if len(statuses) > 0 {
		b.WriteString("\n")
		b.WriteString("    classDef success fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
		b.WriteString("    classDef error fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
		b.WriteString("    classDef pending fill:#6b6b6b,stroke:#4a4a4a,color:#fff\n")

		for i := range def.Nodes {
			id := def.Nodes[i].ID
			cls := "pending"
			switch statuses[id] {
			case schema.NodeStatusSuccess:
				cls = "success"
			case schema.NodeStatusError:
				cls = "error"
			}
			b.WriteString(fmt.Sprintf("    class %s %s\n", safeID(id), cls))
		}
	}

	return b.String()
}

func statusByNode(result *schema.ExecutionResult) map[string]string {
	if result == nil {
		return nil
	}
	statuses := make(map[string]string, len(result.Nodes))
	for _, rec := range result.Nodes {
		statuses[rec.NodeID] = rec.Status
	}
	return statuses
}

// safeID converts a node ID to a Mermaid-safe identifier.
// Replaces dots and dashes with underscores.
func safeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}
