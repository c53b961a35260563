package tracking

// Noise holds the Kalman covariances. Angles are in degrees, distances in
// metres, velocities per second.
type Noise struct {
	ProcessPos float64 // process variance added to each position channel per step
	ProcessVel float64 // process variance added to each velocity channel per step

	MeasAngle float64 // measurement variance of yaw and pitch
	MeasDist  float64 // measurement variance of distance

	InitialVel float64 // initial velocity variance of a new filter
}

// DefaultNoise returns covariances tuned for a ~7 Hz perception loop.
func DefaultNoise() Noise {
	return Noise{
		ProcessPos: 0.5,
		ProcessVel: 4.0,
		MeasAngle:  2.0,
		MeasDist:   0.05,
		InitialVel: 100.0,
	}
}

// unknownDistVariance stands in for the distance measurement variance when
// the detection carried no usable distance, so the channel is not corrected.
const unknownDistVariance = 1e12

type (
	vec6 [6]float64
	mat6 [6][6]float64
	mat3 [3][3]float64
)

// Kalman is a 6-state constant-velocity filter over
// [yaw, pitch, distance, vyaw, vpitch, vdistance]. The measurement is the
// three position channels.
type Kalman struct {
	X vec6
	P mat6
}

// NewKalman starts a filter at rest at the given position.
func NewKalman(yaw, pitch, dist float64, n Noise) Kalman {
	var k Kalman
	k.Reset(yaw, pitch, dist, n)
	return k
}

// Reset places the filter at rest at the given position.
func (k *Kalman) Reset(yaw, pitch, dist float64, n Noise) {
	k.X = vec6{yaw, pitch, dist, 0, 0, 0}
	k.P = mat6{}
	k.P[0][0], k.P[1][1] = n.MeasAngle, n.MeasAngle
	k.P[2][2] = n.MeasDist
	if dist <= 0 {
		k.P[2][2] = unknownDistVariance
	}
	for i := 3; i < 6; i++ {
		k.P[i][i] = n.InitialVel
	}
}

// Yaw returns the estimated yaw in degrees.
func (k *Kalman) Yaw() float64 { return k.X[0] }

// Pitch returns the estimated pitch in degrees.
func (k *Kalman) Pitch() float64 { return k.X[1] }

// Distance returns the estimated distance in metres.
func (k *Kalman) Distance() float64 { return k.X[2] }

// Predict advances the state by dt seconds: x' = F x, P' = F P Fᵀ + Q,
// where F is identity plus dt on the three position-from-velocity terms.
func (k *Kalman) Predict(dt float64, n Noise) {
	if dt < 0 {
		dt = 0
	}
	for i := 0; i < 3; i++ {
		k.X[i] += k.X[i+3] * dt
	}

	// FP: rows 0..2 pick up dt times the matching velocity row.
	var fp mat6
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			fp[i][j] = k.P[i][j]
			if i < 3 {
				fp[i][j] += dt * k.P[i+3][j]
			}
		}
	}
	// (FP)Fᵀ: columns 0..2 pick up dt times the matching velocity column.
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			v := fp[i][j]
			if j < 3 {
				v += dt * fp[i][j+3]
			}
			k.P[i][j] = v
		}
	}

	for i := 0; i < 3; i++ {
		k.P[i][i] += n.ProcessPos
		k.P[i+3][i+3] += n.ProcessVel
	}
}

// Correct folds in a measurement of (yaw, pitch, distance). A distance of
// zero or less is treated as missing and leaves that channel uncorrected.
// It returns false if the innovation covariance is singular.
func (k *Kalman) Correct(yaw, pitch, dist float64, n Noise) bool {
	z := [3]float64{yaw, pitch, dist}
	r := [3]float64{n.MeasAngle, n.MeasAngle, n.MeasDist}
	if dist <= 0 {
		z[2] = k.X[2]
		r[2] = unknownDistVariance
	}

	// S = H P Hᵀ + R is the top-left 3x3 block of P plus R.
	var s mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s[i][j] = k.P[i][j]
		}
		s[i][i] += r[i]
	}
	si, ok := invert3(s)
	if !ok {
		return false
	}

	// K = P Hᵀ S⁻¹ (6x3); P Hᵀ is the first three columns of P.
	var gain [6][3]float64
	for i := 0; i < 6; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for m := 0; m < 3; m++ {
				sum += k.P[i][m] * si[m][j]
			}
			gain[i][j] = sum
		}
	}

	var innov [3]float64
	for i := 0; i < 3; i++ {
		innov[i] = z[i] - k.X[i]
	}
	for i := 0; i < 6; i++ {
		for j := 0; j < 3; j++ {
			k.X[i] += gain[i][j] * innov[j]
		}
	}

	// P = (I - K H) P; K H only touches the first three columns.
	var next mat6
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			v := k.P[i][j]
			for m := 0; m < 3; m++ {
				v -= gain[i][m] * k.P[m][j]
			}
			next[i][j] = v
		}
	}
	// Keep P symmetric against rounding drift.
	for i := 0; i < 6; i++ {
		for j := i + 1; j < 6; j++ {
			avg := (next[i][j] + next[j][i]) / 2
			next[i][j], next[j][i] = avg, avg
		}
	}
	k.P = next
	return true
}

// invert3 inverts a 3x3 matrix through its adjugate.
func invert3(m mat3) (mat3, bool) {
	c00 := m[1][1]*m[2][2] - m[1][2]*m[2][1]
	c01 := m[1][2]*m[2][0] - m[1][0]*m[2][2]
	c02 := m[1][0]*m[2][1] - m[1][1]*m[2][0]
	det := m[0][0]*c00 + m[0][1]*c01 + m[0][2]*c02
	if det == 0 || det != det {
		return mat3{}, false
	}
	inv := 1 / det

	var out mat3
	out[0][0] = c00 * inv
	out[0][1] = (m[0][2]*m[2][1] - m[0][1]*m[2][2]) * inv
	out[0][2] = (m[0][1]*m[1][2] - m[0][2]*m[1][1]) * inv
	out[1][0] = c01 * inv
	out[1][1] = (m[0][0]*m[2][2] - m[0][2]*m[2][0]) * inv
	out[1][2] = (m[0][2]*m[1][0] - m[0][0]*m[1][2]) * inv
	out[2][0] = c02 * inv
	out[2][1] = (m[0][1]*m[2][0] - m[0][0]*m[2][1]) * inv
	out[2][2] = (m[0][0]*m[1][1] - m[0][1]*m[1][0]) * inv
	return out, true
}
