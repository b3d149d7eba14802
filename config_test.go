package hoard

import "testing"

func TestConfigWithDefaultsFillsZeroFields(t *testing.T) {
	got := Config{}.withDefaults()
	want := Config{
		SuperblockSize:      DefaultSuperblockSize,
		NumberOfHeaps:       DefaultNumberOfHeaps,
		HoardK:              DefaultHoardK,
		HoardEmptyFraction:  DefaultHoardEmptyFraction,
		NumberOfSizeClasses: DefaultNumberOfSizeClasses,
	}
	if got != want {
		t.Fatalf("withDefaults() = %+v, want %+v", got, want)
	}
}

func TestConfigWithDefaultsPreservesOverrides(t *testing.T) {
	cfg := Config{SuperblockSize: 8192, NumberOfHeaps: 7}.withDefaults()
	if cfg.SuperblockSize != 8192 {
		t.Fatalf("SuperblockSize = %d, want 8192", cfg.SuperblockSize)
	}
	if cfg.NumberOfHeaps != 7 {
		t.Fatalf("NumberOfHeaps = %d, want 7", cfg.NumberOfHeaps)
	}
	if cfg.HoardEmptyFraction != DefaultHoardEmptyFraction {
		t.Fatalf("HoardEmptyFraction = %v, want default %v", cfg.HoardEmptyFraction, DefaultHoardEmptyFraction)
	}
}
