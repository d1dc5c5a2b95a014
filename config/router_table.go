package config

import (
	"fmt"
	"strconv"
	"strings"
)

// RouteKey is a (label, category) pair the router table maps to a set of
// candidate pipeline IDs. Label is the caller-facing alias (e.g. "default",
// "background"); category distinguishes request classes sharing a label
// (e.g. "default" vs "webSearch", as classified by the router) when a
// deployment wants different pipeline sets per class.
type RouteKey struct {
	Label    string
	Category string
}

// RouterTable maps a RouteKey to the ordered set of pipeline IDs eligible
// to serve it. The router tries them in order, skipping misconfigured or
// unhealthy pipelines.
type RouterTable map[RouteKey][]string

// Lookup returns the pipeline ID candidates for a label/category pair,
// falling back to the empty-category entry for that label if no exact
// match exists.
func (t RouterTable) Lookup(label, category string) ([]string, bool) {
	if ids, ok := t[RouteKey{Label: label, Category: category}]; ok {
		return ids, true
	}
	ids, ok := t[RouteKey{Label: label}]
	return ids, ok
}

// PipelineID is a parsed dash-separated pipeline identifier:
// provider-model-keyIndex, with "gemini-cli" as a compound provider prefix
// (model is every segment between that prefix and the key segment).
type PipelineID struct {
	Raw      string
	Provider string
	Model    string
	KeyIndex int
}

// ParsePipelineID parses a dash-separated pipeline ID per §4.6. The last
// segment is always the key index, prefixed "key"; everything before it is
// provider and model, except that "gemini-cli" consumes two leading
// segments as its provider name.
func ParsePipelineID(id string) (PipelineID, error) {
	parts := strings.Split(id, "-")
	if len(parts) < 3 {
		return PipelineID{}, fmt.Errorf("pipeline id %q: expected at least provider-model-keyN", id)
	}

	last := parts[len(parts)-1]
	keyIndex, err := parseKeySegment(last)
	if err != nil {
		return PipelineID{}, fmt.Errorf("pipeline id %q: %w", id, err)
	}

	body := parts[:len(parts)-1]

	if len(body) >= 3 && body[0] == "gemini" && body[1] == "cli" {
		return PipelineID{
			Raw:      id,
			Provider: "gemini-cli",
			Model:    strings.Join(body[2:], "-"),
			KeyIndex: keyIndex,
		}, nil
	}

	if len(body) < 2 {
		return PipelineID{}, fmt.Errorf("pipeline id %q: missing model segment", id)
	}

	return PipelineID{
		Raw:      id,
		Provider: body[0],
		Model:    strings.Join(body[1:], "-"),
		KeyIndex: keyIndex,
	}, nil
}

func parseKeySegment(seg string) (int, error) {
	if !strings.HasPrefix(seg, "key") {
		return 0, fmt.Errorf("last segment %q is not a keyN index", seg)
	}
	n, err := strconv.Atoi(seg[3:])
	if err != nil {
		return 0, fmt.Errorf("last segment %q is not a keyN index", seg)
	}
	return n, nil
}
