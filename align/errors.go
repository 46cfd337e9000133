package align

import (
	"context"
	"errors"

	"github.com/tikz/localrmsd/pdb"
	"github.com/tikz/localrmsd/rmsd"
	"github.com/tikz/localrmsd/superpose"
)

// Kind groups engine errors by what the caller should do about them.
type Kind int

const (
	// KindNone is the kind of a nil error.
	KindNone Kind = iota
	// KindBadInput covers requests that can never succeed as given.
	KindBadInput
	// KindMissingData means a structure could not be retrieved.
	KindMissingData
	// KindCanceled means the context ended before the analysis did.
	KindCanceled
	// KindInternal covers every other failure.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBadInput:
		return "bad input"
	case KindMissingData:
		return "missing data"
	case KindCanceled:
		return "canceled"
	}
	return "internal"
}

var badInput = []error{
	pdb.ErrChainNotFound,
	pdb.ErrNoCommonChain,
	pdb.ErrEmptyBackbone,
	superpose.ErrInsufficientPoints,
	rmsd.ErrLengthMismatch,
	rmsd.ErrInvalidWindow,
	rmsd.ErrWindowTooLarge,
	ErrInsufficientResidues,
}

// Classify maps an error returned by the engine onto its Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, pdb.ErrUnavailable) {
		return KindMissingData
	}
	for _, target := range badInput {
		if errors.Is(err, target) {
			return KindBadInput
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindInternal
}
