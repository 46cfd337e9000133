// Package align runs the two structure comparisons: the local RMSD analysis
// over positionally truncated backbones, and the whole-structure fit over
// matching residue numbers used for display.
package align

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tikz/localrmsd/compat"
	"github.com/tikz/localrmsd/pdb"
	"github.com/tikz/localrmsd/rmsd"
	"github.com/tikz/localrmsd/superpose"
)

// ErrInsufficientResidues is returned when the truncated chains are shorter
// than the window.
var ErrInsufficientResidues = errors.New("insufficient residues")

// Source returns parsed structures by identifier.
type Source interface {
	Structure(ctx context.Context, id string) (*pdb.PDB, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, id string) (*pdb.PDB, error)

// Structure calls f.
func (f SourceFunc) Structure(ctx context.Context, id string) (*pdb.PDB, error) {
	return f(ctx, id)
}

// Engine holds read-only collaborators and is safe for concurrent use.
type Engine struct {
	Source  Source
	Oracle  compat.Oracle // nil skips lookups, every pair is Unverifiable
	Policy  Policy
	Confirm ConfirmFunc
	Workers int // goroutines for the window pass, <= 1 runs it inline
	Logger  *slog.Logger
}

// New returns an engine with the Abort policy and a single worker.
func New(source Source, oracle compat.Oracle) *Engine {
	return &Engine{Source: source, Oracle: oracle, Policy: Abort, Workers: 1}
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Engine) oracle() compat.Oracle {
	if e.Oracle == nil {
		return compat.OracleFunc(func(context.Context, string, string) []string { return nil })
	}
	return e.Oracle
}

// Fetch retrieves both structures concurrently.
func (e *Engine) Fetch(ctx context.Context, idA, idB string) (*pdb.PDB, *pdb.PDB, error) {
	var a, b *pdb.PDB

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		a, err = e.Source.Structure(ctx, idA)
		if err != nil {
			return fmt.Errorf("fetch structure %s: %w", idA, err)
		}
		return nil
	})
	g.Go(func() (err error) {
		b, err = e.Source.Structure(ctx, idB)
		if err != nil {
			return fmt.Errorf("fetch structure %s: %w", idB, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return a, b, nil
}

// LocalRequest names the structures and chains for a local RMSD analysis.
// Empty chains are resolved from the chains both structures share. A zero
// Window selects rmsd.DefaultWindow.
type LocalRequest struct {
	A      string `json:"a"`
	B      string `json:"b"`
	ChainA string `json:"chainA,omitempty"`
	ChainB string `json:"chainB,omitempty"`
	Window int    `json:"window,omitempty"`
}

// LocalResult is the outcome of a local RMSD analysis. When Outcome is
// Cancelled only the identifiers, chains and Compatibility are set.
type LocalResult struct {
	Outcome       Outcome             `json:"outcome"`
	A             string              `json:"a"`
	B             string              `json:"b"`
	ChainA        string              `json:"chainA"`
	ChainB        string              `json:"chainB"`
	Window        int                 `json:"window"`
	Length        int                 `json:"length"` // residues after truncation
	GlobalRMS     float64             `json:"globalRms"`
	Series        rmsd.Series         `json:"series"`
	Stats         rmsd.Stats          `json:"stats"`
	Compatibility compat.Result       `json:"compatibility"`
	Transform     superpose.Transform `json:"transform"`
}

// AnalyzeLocalRMSD fetches both structures and runs LocalRMSD on them.
func (e *Engine) AnalyzeLocalRMSD(ctx context.Context, req LocalRequest) (*LocalResult, error) {
	if req.Window < 0 {
		return nil, fmt.Errorf("%w: %d", rmsd.ErrInvalidWindow, req.Window)
	}

	a, b, err := e.Fetch(ctx, req.A, req.B)
	if err != nil {
		return nil, err
	}

	return e.LocalRMSD(ctx, a, b, req.ChainA, req.ChainB, req.Window)
}

// LocalRMSD compares a chain of a against a chain of b. Backbones are cut to
// the shorter length by position, so chains whose numbering is offset are
// compared out of register. Structure b is globally superposed on a once, and
// every window is measured under that single fit.
func (e *Engine) LocalRMSD(ctx context.Context, a, b *pdb.PDB, chainA, chainB string, w int) (*LocalResult, error) {
	if w == 0 {
		w = rmsd.DefaultWindow
	}
	if w < 1 {
		return nil, fmt.Errorf("%w: %d", rmsd.ErrInvalidWindow, w)
	}
	log := e.logger().With("a", a.ID, "b", b.ID)

	chainA, chainB, err := pdb.ResolveChains(a, b, chainA, chainB)
	if err != nil {
		return nil, err
	}
	log.Debug("chains resolved", "chainA", chainA, "chainB", chainB)

	ca, _ := a.FirstModel().Chain(chainA)
	cb, _ := b.FirstModel().Chain(chainB)
	setA, err := pdb.Backbone(ca)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.ID, err)
	}
	setB, err := pdb.Backbone(cb)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.ID, err)
	}

	setA, setB = pdb.Truncate(setA, setB)
	n := setA.Len()
	log.Debug("backbones truncated", "length", n, "window", w)
	if ba, bb := setA.Breaks(), setB.Breaks(); len(ba) > 0 || len(bb) > 0 {
		log.Warn("chain breaks, residues may be paired out of register", "breaksA", ba, "breaksB", bb)
	}
	if n < w {
		return nil, fmt.Errorf("%w: %d common residues in %s:%s and %s:%s, window is %d",
			ErrInsufficientResidues, n, a.ID, chainA, b.ID, chainB, w)
	}

	res := &LocalResult{A: a.ID, B: b.ID, ChainA: chainA, ChainB: chainB, Window: w}

	res.Compatibility = compat.Check(ctx, e.oracle(),
		compat.Ref{StructureID: a.ID, ChainID: chainA},
		compat.Ref{StructureID: b.ID, ChainID: chainB})
	ok, err := e.proceed(ctx, res.Compatibility)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Info("analysis cancelled", "verdict", res.Compatibility.Verdict)
		res.Outcome = Cancelled
		return res, nil
	}

	fit, err := superpose.Superimpose(setA.Points, setB.Points)
	if err != nil {
		return nil, fmt.Errorf("superpose %s:%s onto %s:%s: %w", b.ID, chainB, a.ID, chainA, err)
	}
	log.Debug("global fit", "rms", fit.RMS)

	series, err := rmsd.LocalParallel(ctx, setA.Points, fit.Moved, setA.Positions(), w, e.Workers)
	if err != nil {
		return nil, err
	}

	res.Outcome = Completed
	res.Length = n
	res.GlobalRMS = fit.RMS
	res.Transform = fit.Transform
	res.Series = series
	res.Stats = series.Stats()

	return res, nil
}

// DisplayRequest names the structures to overlay. An empty Chain is
// resolved from the chains both structures share.
type DisplayRequest struct {
	A     string `json:"a"`
	B     string `json:"b"`
	Chain string `json:"chain,omitempty"`
}

// DisplayResult holds structure b moved onto structure a.
type DisplayResult struct {
	A         string              `json:"a"`
	B         string              `json:"b"`
	Chain     string              `json:"chain"`
	Matched   int                 `json:"matched"` // residue pairs used for the fit
	GlobalRMS float64             `json:"globalRms"`
	Transform superpose.Transform `json:"transform"`

	Reference   *pdb.PDB `json:"-"`
	Transformed *pdb.PDB `json:"-"` // every atom of b, all models and chains
}

// AlignForDisplay fetches both structures and runs Overlay on them.
func (e *Engine) AlignForDisplay(ctx context.Context, req DisplayRequest) (*DisplayResult, error) {
	a, b, err := e.Fetch(ctx, req.A, req.B)
	if err != nil {
		return nil, err
	}

	return e.Overlay(a, b, req.Chain)
}

// Overlay fits b onto a using the CA atoms of residues numbered alike in
// the chosen chain, then moves the whole of b with that fit.
func (e *Engine) Overlay(a, b *pdb.PDB, chain string) (*DisplayResult, error) {
	chainA, chainB, err := pdb.ResolveChains(a, b, chain, chain)
	if err != nil {
		return nil, err
	}

	ca, _ := a.FirstModel().Chain(chainA)
	cb, _ := b.FirstModel().Chain(chainB)
	setA, setB := pdb.MatchResidueNumbers(ca, cb)

	fit, err := superpose.Superimpose(setA.Points, setB.Points)
	if err != nil {
		return nil, fmt.Errorf("superpose %s:%s onto %s:%s: %w", b.ID, chainB, a.ID, chainA, err)
	}
	e.logger().Debug("overlay fit", "a", a.ID, "b", b.ID, "chain", chainA, "matched", setA.Len(), "rms", fit.RMS)

	return &DisplayResult{
		A:           a.ID,
		B:           b.ID,
		Chain:       chainA,
		Matched:     setA.Len(),
		GlobalRMS:   fit.RMS,
		Transform:   fit.Transform,
		Reference:   a,
		Transformed: b.Transformed(fit.Transform.Apply),
	}, nil
}
