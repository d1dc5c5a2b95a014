package config

import "testing"

func TestTemperatureRange_FallsBackWhenUnconfigured(t *testing.T) {
	p := ProviderRecord{}
	min, max := p.TemperatureRange(0, 2)
	if min != 0 || max != 2 {
		t.Errorf("got (%v, %v), want (0, 2)", min, max)
	}
}

func TestTemperatureRange_UsesConfiguredBounds(t *testing.T) {
	p := ProviderRecord{TemperatureMin: 0.1, TemperatureMax: 0.9}
	min, max := p.TemperatureRange(0, 2)
	if min != 0.1 || max != 0.9 {
		t.Errorf("got (%v, %v), want (0.1, 0.9)", min, max)
	}
}

func TestTopKRange_FallsBackWhenUnconfigured(t *testing.T) {
	p := ProviderRecord{}
	min, max := p.TopKRange(1, 40)
	if min != 1 || max != 40 {
		t.Errorf("got (%v, %v), want (1, 40)", min, max)
	}
}

func TestTopKRange_UsesConfiguredBounds(t *testing.T) {
	p := ProviderRecord{TopKMin: 5, TopKMax: 50}
	min, max := p.TopKRange(1, 40)
	if min != 5 || max != 50 {
		t.Errorf("got (%v, %v), want (5, 50)", min, max)
	}
}

func TestMaxTokensCap_PrefersPerModelEntry(t *testing.T) {
	p := ProviderRecord{MaxTokensByModel: map[string]int{"m": 100}, ContextWindow: 8000}
	if got := p.MaxTokensCap("m", 4096); got != 100 {
		t.Errorf("got %d, want 100", got)
	}
}

func TestMaxTokensCap_DerivesFromContextWindow(t *testing.T) {
	p := ProviderRecord{ContextWindow: 8000}
	if got := p.MaxTokensCap("m", 4096); got != 2000 {
		t.Errorf("got %d, want 2000", got)
	}
}

func TestMaxTokensCap_NeverExceedsFallback(t *testing.T) {
	p := ProviderRecord{ContextWindow: 1000000}
	if got := p.MaxTokensCap("m", 4096); got != 4096 {
		t.Errorf("got %d, want 4096", got)
	}
}

func TestMaxTokensCap_FallsBackWithNoConfig(t *testing.T) {
	p := ProviderRecord{}
	if got := p.MaxTokensCap("m", 4096); got != 4096 {
		t.Errorf("got %d, want 4096", got)
	}
}
