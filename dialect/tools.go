package dialect

import (
	"strings"

	"llmproxy/apierror"
	"llmproxy/types"
)

// translateTools converts client-dialect tool definitions into OpenAI
// function-tool definitions, repairing malformed schemas where possible
// before giving up and rejecting the tool.
func translateTools(tools []types.Tool, resolveDescription func(name, original string) string) ([]types.OpenAITool, []string, error) {
	out := make([]types.OpenAITool, 0, len(tools))
	var repaired []string

	for _, tool := range tools {
		if strings.TrimSpace(tool.Name) == "" {
			return nil, nil, apierror.New(apierror.TypeValidation, "tool definition missing a name").WithSub(apierror.InvalidTool).WithParam("tools")
		}

		if !hasValidSchema(tool) {
			if fixed, ok := repairSchema(tool, tools); ok {
				tool = fixed
				repaired = append(repaired, tool.Name)
			}
		}

		description := tool.Description
		if resolveDescription != nil {
			description = resolveDescription(tool.Name, tool.Description)
		}

		out = append(out, types.OpenAITool{
			Type: "function",
			Function: types.OpenAIToolFunction{
				Name:        tool.Name,
				Description: description,
				Parameters:  tool.InputSchema,
			},
		})
	}

	return out, repaired, nil
}

// hasValidSchema reports whether a tool's input schema is well-formed
// enough to send upstream: a declared type and a non-nil properties map.
func hasValidSchema(tool types.Tool) bool {
	return tool.InputSchema.Type != "" && tool.InputSchema.Properties != nil
}

// repairSchema attempts to recover a malformed tool schema by finding a
// same-named (case-insensitive) tool elsewhere in the request that does
// carry a valid schema, then falling back to an open-ended object schema
// rather than dropping the tool outright.
func repairSchema(tool types.Tool, siblings []types.Tool) (types.Tool, bool) {
	for _, candidate := range siblings {
		if strings.EqualFold(candidate.Name, tool.Name) && hasValidSchema(candidate) {
			tool.InputSchema = candidate.InputSchema
			return tool, true
		}
	}

	tool.InputSchema = types.ToolSchema{
		Type:       "object",
		Properties: map[string]types.ToolProperty{},
	}
	return tool, true
}

// filterTools drops tools named in skip, returning the survivors and the
// names that were skipped.
func filterTools(tools []types.Tool, skip []string) ([]types.Tool, []string) {
	if len(skip) == 0 {
		return tools, nil
	}
	skipSet := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipSet[s] = true
	}

	var kept []types.Tool
	var skipped []string
	for _, t := range tools {
		if skipSet[t.Name] {
			skipped = append(skipped, t.Name)
			continue
		}
		kept = append(kept, t)
	}
	return kept, skipped
}
