package config

import "testing"

func TestDefaultRuntimeConfigIsAlreadyNormalized(t *testing.T) {
	d := DefaultRuntimeConfig()
	if n := d.Normalized(); n != d {
		t.Fatalf("expected defaults to be a fixed point of Normalized, got %+v vs %+v", n, d)
	}
}

func TestNormalizedFillsZeroValuesWithDefaults(t *testing.T) {
	var zero RuntimeConfig
	n := zero.Normalized()
	d := DefaultRuntimeConfig()
	if n.TickRateHz != d.TickRateHz {
		t.Fatalf("expected TickRateHz defaulted to %d, got %d", d.TickRateHz, n.TickRateHz)
	}
	if n.VMax != d.VMax {
		t.Fatalf("expected VMax defaulted to %v, got %v", d.VMax, n.VMax)
	}
	if n.GridCols != d.GridCols || n.GridRows != d.GridRows {
		t.Fatalf("expected grid dimensions defaulted, got cols=%d rows=%d", n.GridCols, n.GridRows)
	}
}

func TestNormalizedClampsMemoryCapacityToTwenty(t *testing.T) {
	c := DefaultRuntimeConfig()
	c.MemoryCapacity = 500
	n := c.Normalized()
	if n.MemoryCapacity != 20 {
		t.Fatalf("expected memory capacity clamped to 20, got %d", n.MemoryCapacity)
	}
}

func TestNormalizedTreatsNegativeBackgroundPopulationAsZero(t *testing.T) {
	c := DefaultRuntimeConfig()
	c.BackgroundPopulation = -5
	n := c.Normalized()
	if n.BackgroundPopulation != 0 {
		t.Fatalf("expected negative background population clamped to 0, got %d", n.BackgroundPopulation)
	}
}

func TestNominalDTMatchesTickRate(t *testing.T) {
	c := RuntimeConfig{TickRateHz: 20}
	if got := c.NominalDT(); got != 0.05 {
		t.Fatalf("expected dt 0.05 at 20Hz, got %v", got)
	}
}

func TestNominalDTFallsBackToTwentyHzWhenUnset(t *testing.T) {
	var c RuntimeConfig
	if got := c.NominalDT(); got != 0.05 {
		t.Fatalf("expected fallback dt 0.05, got %v", got)
	}
}

func TestMaxDTScalesWithCatchupTicks(t *testing.T) {
	c := RuntimeConfig{TickRateHz: 20, CatchupMaxTicks: 2}
	if got := c.MaxDT(); got != 0.1 {
		t.Fatalf("expected max dt 0.1, got %v", got)
	}
}
