package config

import "testing"

func TestApplySystemMessageOverrides_RemovePatterns(t *testing.T) {
	overrides := SystemMessageOverrides{
		RemovePatterns: []string{`\[DEBUG\].*`},
	}
	got := ApplySystemMessageOverrides("keep this [DEBUG] drop this", overrides)
	want := "keep this "
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApplySystemMessageOverrides_InvalidPatternSkipped(t *testing.T) {
	overrides := SystemMessageOverrides{
		RemovePatterns: []string{"("},
	}
	got := ApplySystemMessageOverrides("unchanged", overrides)
	if got != "unchanged" {
		t.Errorf("an invalid regex should be skipped, not fail the whole message; got %q", got)
	}
}

func TestApplySystemMessageOverrides_Replacements(t *testing.T) {
	overrides := SystemMessageOverrides{
		Replacements: []SystemMessageReplacement{
			{Find: "foo", Replace: "bar"},
		},
	}
	got := ApplySystemMessageOverrides("foo baz foo", overrides)
	want := "bar baz bar"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApplySystemMessageOverrides_OrderIsRemoveThenReplaceThenWrap(t *testing.T) {
	overrides := SystemMessageOverrides{
		RemovePatterns: []string{`X`},
		Replacements:    []SystemMessageReplacement{{Find: "Y", Replace: "Z"}},
		Prepend:         "[",
		Append:          "]",
	}
	got := ApplySystemMessageOverrides("XY", overrides)
	want := "[Z]"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLoadToolDescriptions_MissingFileReturnsEmptyMap(t *testing.T) {
	descriptions, err := LoadToolDescriptions()
	if err != nil {
		t.Fatalf("unexpected error for a missing tools_override.yaml: %v", err)
	}
	if len(descriptions) != 0 {
		t.Errorf("expected an empty map, got %v", descriptions)
	}
}

func TestLoadSystemMessageOverrides_MissingFileReturnsZeroValue(t *testing.T) {
	overrides, err := LoadSystemMessageOverrides()
	if err != nil {
		t.Fatalf("unexpected error for a missing system_overrides.yaml: %v", err)
	}
	if len(overrides.RemovePatterns) != 0 || len(overrides.Replacements) != 0 || overrides.Prepend != "" || overrides.Append != "" {
		t.Errorf("expected zero-value overrides, got %+v", overrides)
	}
}
