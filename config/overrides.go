package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ToolDescriptionsYAML is the structure of tools_override.yaml.
type ToolDescriptionsYAML struct {
	ToolDescriptions map[string]string `yaml:"toolDescriptions"`
}

// LoadToolDescriptions loads tool description overrides from
// tools_override.yaml. Returns an empty map, not an error, if the file
// doesn't exist.
func LoadToolDescriptions() (map[string]string, error) {
	file, err := os.Open("tools_override.yaml")
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("failed to open tools_override.yaml: %w", err)
	}
	defer file.Close()

	var yamlData ToolDescriptionsYAML
	if err := yaml.NewDecoder(file).Decode(&yamlData); err != nil {
		return nil, fmt.Errorf("failed to parse tools_override.yaml: %w", err)
	}
	if yamlData.ToolDescriptions == nil {
		yamlData.ToolDescriptions = make(map[string]string)
	}
	return yamlData.ToolDescriptions, nil
}

// GetToolDescription resolves an override description for toolName from
// overrides, falling back to originalDescription.
func GetToolDescription(overrides map[string]string, toolName, originalDescription string) string {
	if override, exists := overrides[toolName]; exists {
		return override
	}
	return originalDescription
}

// SystemMessageReplacement is a single find-and-replace operation applied
// to a system message.
type SystemMessageReplacement struct {
	Find    string `yaml:"find"`
	Replace string `yaml:"replace"`
}

// SystemMessageOverrides describes sequential transformations applied to a
// client-supplied system message: pattern removal, then replacements, then
// prepend/append.
type SystemMessageOverrides struct {
	RemovePatterns []string                   `yaml:"removePatterns"`
	Replacements   []SystemMessageReplacement `yaml:"replacements"`
	Prepend        string                     `yaml:"prepend"`
	Append         string                     `yaml:"append"`
}

// SystemMessageOverridesYAML is the structure of system_overrides.yaml.
type SystemMessageOverridesYAML struct {
	SystemMessageOverrides SystemMessageOverrides `yaml:"systemMessageOverrides"`
}

// LoadSystemMessageOverrides loads system_overrides.yaml. Returns an empty
// struct, not an error, if the file doesn't exist.
func LoadSystemMessageOverrides() (SystemMessageOverrides, error) {
	file, err := os.Open("system_overrides.yaml")
	if err != nil {
		if os.IsNotExist(err) {
			return SystemMessageOverrides{}, nil
		}
		return SystemMessageOverrides{}, fmt.Errorf("failed to open system_overrides.yaml: %w", err)
	}
	defer file.Close()

	var yamlData SystemMessageOverridesYAML
	if err := yaml.NewDecoder(file).Decode(&yamlData); err != nil {
		return SystemMessageOverrides{}, fmt.Errorf("failed to parse system_overrides.yaml: %w", err)
	}
	return yamlData.SystemMessageOverrides, nil
}

// ApplySystemMessageOverrides runs the configured transformations over
// originalMessage, in order: remove patterns, replacements, prepend,
// append. Invalid regex patterns are skipped rather than failing the
// request.
func ApplySystemMessageOverrides(originalMessage string, overrides SystemMessageOverrides) string {
	message := originalMessage

	for _, pattern := range overrides.RemovePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		message = re.ReplaceAllString(message, "")
	}

	for _, replacement := range overrides.Replacements {
		message = strings.ReplaceAll(message, replacement.Find, replacement.Replace)
	}

	if overrides.Prepend != "" {
		message = overrides.Prepend + message
	}
	if overrides.Append != "" {
		message = message + overrides.Append
	}

	return message
}
