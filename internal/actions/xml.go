package actions

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/mvidal/trellis/pkg/schema"
)

const xmlParseInputSchema = `{
  "type": "object",
  "properties": {
    "xml": {"type": "string"}
  },
  "required": ["xml"]
}`

// XMLParseHandler implements the "xml.parse" action: converts XML text into a
// nested map under the "json" key. Attributes become "@name" keys, repeated
// child elements coalesce into sequences, and text-only elements become plain
// strings (mixed content keeps its text under "#text").
type XMLParseHandler struct{}

// NewXMLParseHandler creates a new xml.parse handler.
func NewXMLParseHandler() *XMLParseHandler {
	return &XMLParseHandler{}
}

func (h *XMLParseHandler) Name() string { return "xml.parse" }

func (h *XMLParseHandler) Schema() HandlerSchema {
	return HandlerSchema{
		Description: "Parse XML text into structured data; returns {json: <parsed>}.",
		InputSchema: json.RawMessage(xmlParseInputSchema),
	}
}

func (h *XMLParseHandler) Execute(ctx context.Context, node *schema.WorkflowNode, input map[string]any) (map[string]any, error) {
	text := stringParam(input, "xml", "")
	if text == "" {
		return nil, schema.NewError(schema.ErrCodeHandler, "xml.parse: missing required param 'xml'")
	}

	dec := xml.NewDecoder(strings.NewReader(text))
	root, err := parseElement(dec)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeHandler, "xml.parse: %s", err.Error()).WithCause(err)
	}
	if root == nil {
		return nil, schema.NewError(schema.ErrCodeHandler, "xml.parse: document has no root element")
	}

	return map[string]any{"json": map[string]any{root.name: root.value()}}, nil
}

// element accumulates one XML element's attributes, children, and text while
// decoding.
type element struct {
	name     string
	attrs    map[string]any
	children map[string]any
	order    []string
	text     strings.Builder
}

// parseElement reads tokens until it has decoded the next complete element.
// Returns nil when the stream ends before any element starts.
func parseElement(dec *xml.Decoder) (*element, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		return decodeElement(dec, start)
	}
}

func decodeElement(dec *xml.Decoder, start xml.StartElement) (*element, error) {
	el := &element{
		name:     start.Name.Local,
		children: make(map[string]any),
	}
	for _, attr := range start.Attr {
		if el.attrs == nil {
			el.attrs = make(map[string]any)
		}
		el.attrs["@"+attr.Name.Local] = attr.Value
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := decodeElement(dec, t)
			if err != nil {
				return nil, err
			}
			el.addChild(child)
		case xml.CharData:
			el.text.Write(t)
		case xml.EndElement:
			return el, nil
		}
	}
}

// addChild records a child value, coalescing repeated names into a sequence.
func (el *element) addChild(child *element) {
	val := child.value()
	existing, ok := el.children[child.name]
	if !ok {
		el.children[child.name] = val
		el.order = append(el.order, child.name)
		return
	}
	if seq, ok := existing.([]any); ok {
		el.children[child.name] = append(seq, val)
		return
	}
	el.children[child.name] = []any{existing, val}
}

// value renders the element as a plain string when it holds only text, and as
// a map otherwise.
func (el *element) value() any {
	text := strings.TrimSpace(el.text.String())
	if len(el.children) == 0 && el.attrs == nil {
		return text
	}

	out := make(map[string]any, len(el.children)+len(el.attrs)+1)
	for k, v := range el.attrs {
		out[k] = v
	}
	for _, name := range el.order {
		out[name] = el.children[name]
	}
	if text != "" {
		out["#text"] = text
	}
	return out
}
