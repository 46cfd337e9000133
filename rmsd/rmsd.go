// Package rmsd measures root-mean-square deviations between corresponding
// points, over a whole set or over a sliding window along a chain.
//
// No fitting is done here: the mobile points are expected to be already
// superposed on the reference. Windows are never re-superposed, so a local
// value reflects both the shape of a region and its drift under the global fit.
package rmsd

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

// DefaultWindow is the window length used when none is given.
const DefaultWindow = 5

var (
	// ErrLengthMismatch is returned when point sets or positions differ in length.
	ErrLengthMismatch = errors.New("point sets differ in length")

	// ErrEmpty is returned when there are no points to compare.
	ErrEmpty = errors.New("empty point set")

	// ErrInvalidWindow is returned for a window shorter than one residue.
	ErrInvalidWindow = errors.New("invalid window")

	// ErrWindowTooLarge is returned when the window exceeds the set length.
	ErrWindowTooLarge = errors.New("window larger than sequence")
)

// RMSD returns sqrt(mean(|a_i - b_i|^2)).
func RMSD(a, b []r3.Vec) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d and %d", ErrLengthMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, ErrEmpty
	}
	return span(a, b, 0, len(a)), nil
}

// span is the RMSD of a[i:i+w] against b[i:i+w].
func span(a, b []r3.Vec, i, w int) float64 {
	var sum float64
	for k := i; k < i+w; k++ {
		sum += r3.Norm2(r3.Sub(a[k], b[k]))
	}
	return math.Sqrt(sum / float64(w))
}

// Point is the local RMSD of one window, reported at its central residue.
type Point struct {
	Position int64   `json:"position"`
	RMSD     float64 `json:"rmsd"`
}

// Series holds one Point per window, in increasing window start order.
type Series []Point

// Positions returns the reported residue positions.
func (s Series) Positions() []int64 {
	pos := make([]int64, len(s))
	for i, p := range s {
		pos[i] = p.Position
	}
	return pos
}

// Values returns the local RMSD values.
func (s Series) Values() []float64 {
	vals := make([]float64, len(s))
	for i, p := range s {
		vals[i] = p.RMSD
	}
	return vals
}

// Stats summarizes a series.
type Stats struct {
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"stdDev"` // population standard deviation
	Max         float64 `json:"max"`
	MaxPosition int64   `json:"maxPosition"` // position of the first maximum
	Min         float64 `json:"min"`
}

// Stats returns the summary statistics of s, all zero for an empty series.
func (s Series) Stats() Stats {
	if len(s) == 0 {
		return Stats{}
	}
	vals := s.Values()
	return Stats{
		Mean:        stat.Mean(vals, nil),
		StdDev:      math.Sqrt(stat.PopVariance(vals, nil)),
		Max:         floats.Max(vals),
		MaxPosition: s[floats.MaxIdx(vals)].Position,
		Min:         floats.Min(vals),
	}
}

func validate(ref, moved []r3.Vec, positions []int64, w int) error {
	if len(ref) != len(moved) || len(ref) != len(positions) {
		return fmt.Errorf("%w: %d reference, %d moved, %d positions", ErrLengthMismatch, len(ref), len(moved), len(positions))
	}
	if w < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidWindow, w)
	}
	if w > len(ref) {
		return fmt.Errorf("%w: window %d, length %d", ErrWindowTooLarge, w, len(ref))
	}
	return nil
}

// Local slides a window of w points over ref and moved and returns the RMSD
// of every window start i in [0, n-w]. positions holds the reference residue
// numbers; window i is reported at positions[i+w/2].
func Local(ref, moved []r3.Vec, positions []int64, w int) (Series, error) {
	if err := validate(ref, moved, positions, w); err != nil {
		return nil, err
	}

	s := make(Series, len(ref)-w+1)
	fill(s, ref, moved, positions, w, 0, len(s))
	return s, nil
}

// LocalParallel returns the same series as Local, splitting the window starts
// among up to workers goroutines. Each window is written into its own slot.
func LocalParallel(ctx context.Context, ref, moved []r3.Vec, positions []int64, w, workers int) (Series, error) {
	if workers <= 1 {
		return Local(ref, moved, positions, w)
	}
	if err := validate(ref, moved, positions, w); err != nil {
		return nil, err
	}

	s := make(Series, len(ref)-w+1)
	chunk := (len(s) + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for from := 0; from < len(s); from += chunk {
		from := from
		to := min(from+chunk, len(s))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fill(s, ref, moved, positions, w, from, to)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s, nil
}

func fill(s Series, ref, moved []r3.Vec, positions []int64, w, from, to int) {
	for i := from; i < to; i++ {
		s[i] = Point{Position: positions[i+w/2], RMSD: span(ref, moved, i, w)}
	}
}
