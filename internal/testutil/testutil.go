// Package testutil holds numeric assertions shared by the package tests.
package testutil

import (
	"fmt"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// RequireSliceNearlyEqual fails t if got and want differ in length or if
// any element pair exceeds eps (absolute tolerance). NaN matches NaN.
func RequireSliceNearlyEqual(t testing.TB, got, want []float64, eps float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
		return
	}
	for i := range got {
		if math.IsNaN(got[i]) && math.IsNaN(want[i]) {
			continue
		}
		diff := math.Abs(got[i] - want[i])
		if !(diff <= eps) {
			t.Fatalf("index %d: got %v, want %v (diff %v > eps %v)", i, got[i], want[i], diff, eps)
			return
		}
	}
}

// RequireSliceEqual is RequireSliceNearlyEqual with zero tolerance.
func RequireSliceEqual(t testing.TB, got, want []float64) {
	t.Helper()
	RequireSliceNearlyEqual(t, got, want, 0)
}

// RequireFinite fails t if any element is NaN or Inf.
func RequireFinite(t testing.TB, data []float64) {
	t.Helper()
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("index %d: non-finite value %v", i, v)
			return
		}
	}
}

// RequireDenseEqual fails t unless got and want have the same shape and
// bit-identical cells, treating NaN as equal to NaN.
func RequireDenseEqual(t testing.TB, got, want mat.Matrix) {
	t.Helper()
	gr, gc := got.Dims()
	wr, wc := want.Dims()
	if gr != wr || gc != wc {
		t.Fatalf("shape mismatch: got (%d, %d), want (%d, %d)", gr, gc, wr, wc)
		return
	}
	for i := 0; i < gr; i++ {
		for j := 0; j < gc; j++ {
			g, w := got.At(i, j), want.At(i, j)
			if g != w && !(math.IsNaN(g) && math.IsNaN(w)) {
				t.Fatalf("cell (%d, %d): got %v, want %v", i, j, g, w)
				return
			}
		}
	}
}

// MaxAbsDiff returns the maximum absolute difference between two slices.
// Returns an error if the slices differ in length.
func MaxAbsDiff(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("length mismatch: %d vs %d", len(a), len(b))
	}
	maxDiff := 0.0
	for i := range a {
		if d := math.Abs(a[i] - b[i]); d > maxDiff {
			maxDiff = d
		}
	}
	return maxDiff, nil
}
