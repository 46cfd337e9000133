// Package superpose computes the least-squares rigid-body fit of one point
// set onto another (Kabsch algorithm) and applies it.
//
// A brief overview of the fit, for reference set A and mobile set B of N
// points each:
//
// Center both sets on their centroids.
//
// Build the 3x3 cross-covariance H = sum((b - cb)(a - ca)^T).
//
// Decompose H = U S V^T.
//
// Compute d = sign(det(V U^T)).
//
// The rotation is R = V diag(1, 1, d) U^T and the translation t = ca - R cb.
//
// The d correction keeps R a proper rotation (determinant +1) when the
// naive product would be a reflection.
package superpose

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/tikz/localrmsd/rmsd"
)

// MinPoints is the smallest set size for which a 3D rigid fit is determined.
const MinPoints = 3

var (
	// ErrInsufficientPoints is returned when a set has fewer than MinPoints points.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrLengthMismatch is returned when the two sets differ in length.
	ErrLengthMismatch = rmsd.ErrLengthMismatch
)

// Transform is a rigid-body motion: v' = Rotation v + Translation.
type Transform struct {
	Rotation    [3][3]float64 `json:"rotation"`
	Translation r3.Vec        `json:"translation"`
}

// Identity returns the transform that leaves every point in place.
func Identity() Transform {
	return Transform{Rotation: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
}

// Apply moves a single point.
func (t Transform) Apply(v r3.Vec) r3.Vec {
	return r3.Add(t.rotate(v), t.Translation)
}

// ApplyAll returns a new slice with every point moved.
func (t Transform) ApplyAll(vs []r3.Vec) []r3.Vec {
	out := make([]r3.Vec, len(vs))
	for i, v := range vs {
		out[i] = t.Apply(v)
	}
	return out
}

// Compose returns the transform equivalent to applying t first and then next.
func (t Transform) Compose(next Transform) Transform {
	var c Transform
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				c.Rotation[i][j] += next.Rotation[i][k] * t.Rotation[k][j]
			}
		}
	}
	c.Translation = next.Apply(t.Translation)
	return c
}

// Inverse returns the transform undoing t.
func (t Transform) Inverse() Transform {
	var inv Transform
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			inv.Rotation[i][j] = t.Rotation[j][i]
		}
	}
	inv.Translation = r3.Scale(-1, inv.rotate(t.Translation))
	return inv
}

// Det returns the determinant of the rotation part.
func (t Transform) Det() float64 {
	return mat.Det(t.dense())
}

func (t Transform) rotate(v r3.Vec) r3.Vec {
	r := t.Rotation
	return r3.Vec{
		X: r[0][0]*v.X + r[0][1]*v.Y + r[0][2]*v.Z,
		Y: r[1][0]*v.X + r[1][1]*v.Y + r[1][2]*v.Z,
		Z: r[2][0]*v.X + r[2][1]*v.Y + r[2][2]*v.Z,
	}
}

func (t Transform) dense() *mat.Dense {
	d := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			d.Set(i, j, t.Rotation[i][j])
		}
	}
	return d
}

// Fit returns the transform minimizing the RMSD between ref and the
// transformed mobile set. Points correspond by index.
func Fit(ref, mobile []r3.Vec) (Transform, error) {
	if len(ref) != len(mobile) {
		return Transform{}, fmt.Errorf("%w: %d and %d", ErrLengthMismatch, len(ref), len(mobile))
	}
	if len(ref) < MinPoints {
		return Transform{}, fmt.Errorf("%w: %d points, need at least %d", ErrInsufficientPoints, len(ref), MinPoints)
	}

	ca, cb := Centroid(ref), Centroid(mobile)

	h := mat.NewDense(3, 3, nil)
	for i := range ref {
		a := r3.Sub(ref[i], ca)
		b := r3.Sub(mobile[i], cb)
		bv := [3]float64{b.X, b.Y, b.Z}
		av := [3]float64{a.X, a.Y, a.Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				h.Set(r, c, h.At(r, c)+bv[r]*av[c])
			}
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(h, mat.SVDFull); !ok {
		return Transform{}, errors.New("superpose: SVD factorization failed")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var vut mat.Dense
	vut.Mul(&v, u.T())

	d := 1.0
	if mat.Det(&vut) < 0 {
		d = -1
	}
	corr := mat.NewDiagDense(3, []float64{1, 1, d})

	var vd, rot mat.Dense
	vd.Mul(&v, corr)
	rot.Mul(&vd, u.T())

	var t Transform
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t.Rotation[i][j] = rot.At(i, j)
		}
	}
	t.Translation = r3.Sub(ca, t.rotate(cb))

	return t, nil
}

// Result is a fitted overlay of a mobile set onto a reference set.
type Result struct {
	Transform Transform `json:"transform"`
	Moved     []r3.Vec  `json:"-"`   // mobile points after the transform
	RMS       float64   `json:"rms"` // RMSD between reference and Moved
}

// Superimpose fits mobile onto ref, applies the fit and measures the
// remaining deviation.
func Superimpose(ref, mobile []r3.Vec) (*Result, error) {
	t, err := Fit(ref, mobile)
	if err != nil {
		return nil, err
	}

	moved := t.ApplyAll(mobile)
	rms, err := rmsd.RMSD(ref, moved)
	if err != nil {
		return nil, err
	}

	return &Result{Transform: t, Moved: moved, RMS: rms}, nil
}

// Centroid returns the mean position of vs, the zero vector for an empty set.
func Centroid(vs []r3.Vec) r3.Vec {
	var c r3.Vec
	if len(vs) == 0 {
		return c
	}
	for _, v := range vs {
		c = r3.Add(c, v)
	}
	return r3.Scale(1/float64(len(vs)), c)
}
