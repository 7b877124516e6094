package entropy

import (
	"math"
	"testing"
)

func TestSameSeedSameStream(t *testing.T) {
	a, b := New(7), New(7)
	for i := 0; i < 1000; i++ {
		if x, y := a.Float(), b.Float(); x != y {
			t.Fatalf("draw %d: %v != %v", i, x, y)
		}
		if x, y := a.Normal(0, 1), b.Normal(0, 1); x != y {
			t.Fatalf("normal draw %d: %v != %v", i, x, y)
		}
	}
}

func TestUniformBounds(t *testing.T) {
	s := New(1)
	for i := 0; i < 5000; i++ {
		v := s.Uniform(20, 80)
		if v < 20 || v >= 80 {
			t.Fatalf("Uniform(20, 80) = %v, out of range", v)
		}
	}
}

func TestWeightedChoiceDistribution(t *testing.T) {
	s := New(42)
	weights := []float64{65, 30, 5}
	counts := make([]int, len(weights))
	const n = 100000
	for i := 0; i < n; i++ {
		counts[s.WeightedChoice(weights)]++
	}

	for i, w := range weights {
		got := float64(counts[i]) / n
		want := w / 100
		if math.Abs(got-want) > 0.01 {
			t.Errorf("index %d: frequency %.4f, want ~%.2f", i, got, want)
		}
	}
}

func TestWeightedChoiceEdgeCases(t *testing.T) {
	s := New(3)

	tests := []struct {
		name    string
		weights []float64
		want    int
	}{
		{"all zero", []float64{0, 0, 0}, 0},
		{"empty", nil, 0},
		{"single positive", []float64{0, 0, 4}, 2},
		{"negative ignored", []float64{-5, 1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 50; i++ {
				if got := s.WeightedChoice(tt.weights); got != tt.want {
					t.Fatalf("WeightedChoice(%v) = %d, want %d", tt.weights, got, tt.want)
				}
			}
		})
	}
}

func TestChanceExtremes(t *testing.T) {
	s := New(9)
	for i := 0; i < 1000; i++ {
		if s.Chance(0) {
			t.Fatal("Chance(0) returned true")
		}
		if !s.Chance(1) {
			t.Fatal("Chance(1) returned false")
		}
	}
}
