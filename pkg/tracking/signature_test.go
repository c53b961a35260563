package tracking

import (
	"math"
	"testing"
	"time"
)

// frontal returns landmarks of a face looking straight at the camera with
// its box at (left, top) and the given size. noseShift moves the nose
// sideways as a fraction of the box width.
func frontal(left, top, w, h, noseShift float64) Landmarks {
	return Landmarks{
		left + 0.30*w, top + 0.40*h,             // right eye
		left + 0.70*w, top + 0.40*h,             // left eye
		left + (0.50+noseShift)*w, top + 0.60*h, // nose
		left + 0.35*w, top + 0.80*h,             // right mouth corner
		left + 0.65*w, top + 0.80*h,             // left mouth corner
	}
}

func TestComputeSignature_ScaleAndTranslationInvariant(t *testing.T) {
	a, ok := ComputeSignature(frontal(0, 0, 40, 50, 0))
	if !ok {
		t.Fatal("frontal face rejected")
	}
	b, ok := ComputeSignature(frontal(200, 90, 80, 100, 0))
	if !ok {
		t.Fatal("scaled face rejected")
	}
	if d := SignatureDistance(a, b); d > 1e-9 {
		t.Errorf("distance between scaled copies = %v", d)
	}
	if d := SignatureDistance(a, a); d != 0 {
		t.Errorf("self distance = %v", d)
	}
}

func TestComputeSignature_DifferentFaces(t *testing.T) {
	a, _ := ComputeSignature(frontal(0, 0, 40, 50, 0))
	other := frontal(0, 0, 40, 50, 0)
	other[5] += 5 // nose tip lower
	b, ok := ComputeSignature(other)
	if !ok {
		t.Fatal("second face rejected")
	}
	if SignatureDistance(a, b) <= 0.01 {
		t.Errorf("different proportions should differ: %v vs %v", a, b)
	}
}

func TestComputeSignature_Rejects(t *testing.T) {
	tests := []struct {
		name string
		l    Landmarks
	}{
		{"oblique", frontal(0, 0, 40, 50, 0.15)},
		{"degenerate", Landmarks{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := ComputeSignature(tc.l); ok {
				t.Error("expected rejection")
			}
		})
	}
}

func TestGazeRatio(t *testing.T) {
	tests := []struct {
		name  string
		shift float64
		want  float64
	}{
		{"frontal", 0, 0},
		{"slightly right", 0.05, 0.25},
		{"clamped", 0.5, 1},
		{"clamped negative", -0.5, -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := GazeRatio(frontal(0, 0, 40, 50, tc.shift))
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}

	if got := GazeRatio(Landmarks{}); got != 0 {
		t.Errorf("coincident eyes: got %v", got)
	}
}

func TestGaze_EdgesAndDuration(t *testing.T) {
	var g gaze
	t0 := time.Unix(1000, 0)

	g.update(0.05, 0.3, 0.15, t0)
	if !g.looking || !g.since.Equal(t0) {
		t.Fatalf("rising edge not recorded: %+v", g)
	}

	g.update(0.0, 0.3, 0.15, t0.Add(time.Second))
	if !g.since.Equal(t0) {
		t.Error("since must not move while looking")
	}
	if d := g.duration(t0.Add(2 * time.Second)); d != 2*time.Second {
		t.Errorf("duration = %v", d)
	}

	// A single outlier is smoothed away.
	g.update(0.4, 0.3, 0.15, t0.Add(2*time.Second))
	if !g.looking {
		t.Errorf("smoothed %v should still be looking", g.smoothed)
	}

	for i := 0; i < 10; i++ {
		g.update(1, 0.3, 0.15, t0.Add(3*time.Second))
	}
	if g.looking || !g.since.IsZero() {
		t.Errorf("falling edge not recorded: %+v", g)
	}
	if d := g.duration(t0.Add(4 * time.Second)); d != 0 {
		t.Errorf("duration after looking away = %v", d)
	}
}
