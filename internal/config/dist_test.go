package config

import (
	"math/rand"
	"testing"
)

func TestDistConstantSample(t *testing.T) {
	d := Dist{Distribution: DistConstant, Value: 3.5}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10; i++ {
		v, err := d.Sample(rng)
		if err != nil {
			t.Fatalf("Sample: %v", err)
		}
		if v != 3.5 {
			t.Fatalf("constant drew %v", v)
		}
	}
}

func TestDistUniformStaysInRange(t *testing.T) {
	d := Dist{Distribution: DistUniform, Min: 2, Max: 5}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		v, err := d.Sample(rng)
		if err != nil {
			t.Fatalf("Sample: %v", err)
		}
		if v < 2 || v >= 5 {
			t.Fatalf("uniform drew %v outside [2,5)", v)
		}
	}
}

func TestDistDiscreteUniformDrawsFromValues(t *testing.T) {
	d := Dist{Distribution: DistDiscreteUniform, Values: []float64{1, 2, 4}}
	rng := rand.New(rand.NewSource(1))
	allowed := map[float64]bool{1: true, 2: true, 4: true}
	seen := map[float64]bool{}
	for i := 0; i < 1000; i++ {
		v, err := d.Sample(rng)
		if err != nil {
			t.Fatalf("Sample: %v", err)
		}
		if !allowed[v] {
			t.Fatalf("discrete uniform drew %v", v)
		}
		seen[v] = true
	}
	if len(seen) != 3 {
		t.Fatalf("1000 draws should hit every value, saw %v", seen)
	}
}

func TestDistDiscreteUniformEmpty(t *testing.T) {
	d := Dist{Distribution: DistDiscreteUniform}
	if _, err := d.Sample(rand.New(rand.NewSource(1))); err == nil {
		t.Fatalf("expected error for empty value set")
	}
}

func TestDistLognormalIsPositive(t *testing.T) {
	d := Dist{Distribution: DistLognormal, Mean: 100, Std: 0.5}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		v, err := d.Sample(rng)
		if err != nil {
			t.Fatalf("Sample: %v", err)
		}
		if v <= 0 {
			t.Fatalf("lognormal drew %v", v)
		}
	}
}

func TestDistLognormalRejectsNonPositiveMean(t *testing.T) {
	d := Dist{Distribution: DistLognormal, Mean: 0, Std: 0.5}
	if _, err := d.Sample(rand.New(rand.NewSource(1))); err == nil {
		t.Fatalf("expected error for non-positive mean")
	}
}

func TestDistUnknownFamily(t *testing.T) {
	d := Dist{Distribution: "cauchy"}
	if _, err := d.Sample(rand.New(rand.NewSource(1))); err == nil {
		t.Fatalf("expected error for unknown family")
	}
}

func TestDistSampleIsSeedDeterministic(t *testing.T) {
	d := Dist{Distribution: DistUniform, Min: 0, Max: 1}
	a := rand.New(rand.NewSource(9))
	b := rand.New(rand.NewSource(9))
	for i := 0; i < 100; i++ {
		va, _ := d.Sample(a)
		vb, _ := d.Sample(b)
		if va != vb {
			t.Fatalf("draw %d diverged: %v vs %v", i, va, vb)
		}
	}
}
