package predict

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestDrift_Bounds(t *testing.T) {
	const teleport, maxStep = 10.0, 0.025
	cases := []struct {
		name   string
		local  mgl64.Vec2
		mirror mgl64.Vec2
		snap   bool
		want   float64 // expected |delta|
	}{
		{"equal", mgl64.Vec2{3, 4}, mgl64.Vec2{3, 4}, false, 0},
		{"tiny", mgl64.Vec2{0.01, 0}, mgl64.Vec2{}, false, 0.01},
		{"at threshold", mgl64.Vec2{10, 0}, mgl64.Vec2{}, false, maxStep},
		{"diagonal", mgl64.Vec2{3, 4}, mgl64.Vec2{}, false, maxStep},
		{"just beyond", mgl64.Vec2{10.0001, 0}, mgl64.Vec2{}, true, 10.0001},
		{"far", mgl64.Vec2{-50, 20}, mgl64.Vec2{1, 1}, true, mgl64.Vec2{-51, 19}.Len()},
	}
	for _, tc := range cases {
		delta, snap := Drift(tc.local, tc.mirror, teleport, maxStep)
		if snap != tc.snap {
			t.Fatalf("%s: snap=%v want %v", tc.name, snap, tc.snap)
		}
		if math.Abs(delta.Len()-tc.want) > 1e-9 {
			t.Fatalf("%s: |delta|=%v want %v", tc.name, delta.Len(), tc.want)
		}
		if snap && tc.mirror.Add(delta) != tc.local {
			t.Fatalf("%s: snap leaves residual %v", tc.name, tc.local.Sub(tc.mirror.Add(delta)))
		}
		if !snap && delta.Len() > maxStep+1e-12 {
			t.Fatalf("%s: correction %v exceeds bound", tc.name, delta.Len())
		}
	}
}
