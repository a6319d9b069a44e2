// Package policy ranks new-transmission candidates of a slice and learns from
// the grants that were handed out.
package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/signalsfoundry/gnb-scheduler/model"
	"github.com/signalsfoundry/gnb-scheduler/ue"
)

// ErrUnknownPolicy is returned by New for an unsupported policy kind.
var ErrUnknownPolicy = errors.New("unknown scheduler policy")

// Candidate is a UE eligible for a new transmission in the current slot.
// Priority starts at model.ForbidPriority; a policy that leaves it there vetoes
// the UE for this opportunity.
type Candidate struct {
	UE           *ue.SliceUE
	Cell         *ue.Cell
	PendingBytes int
	Priority     model.Priority
}

// Policy is a pluggable scheduling strategy.
type Policy interface {
	// ComputeUEDLPriorities assigns a priority to each DL candidate.
	ComputeUEDLPriorities(pdcchSlot, pdschSlot model.SlotPoint, cell model.CellIndex, cands []Candidate)
	// ComputeUEULPriorities assigns a priority to each UL candidate.
	ComputeUEULPriorities(pdcchSlot, puschSlot model.SlotPoint, cell model.CellIndex, cands []Candidate)
	// SaveDLNewTxGrants receives the DL new-transmission grants just placed.
	SaveDLNewTxGrants(grants []model.DLGrant)
	// SaveULNewTxGrants receives the UL new-transmission grants just placed.
	SaveULNewTxGrants(grants []model.ULGrant)
}

// Kind selects a policy implementation.
type Kind string

const (
	KindRoundRobin       Kind = "round_robin"
	KindProportionalFair Kind = "proportional_fair"
)

// Params tunes the policies. Zero values select defaults.
type Params struct {
	// PFAlpha is the EWMA coefficient of the proportional-fair throughput average.
	PFAlpha float64
	// PFFairnessCoeff is the exponent applied to the achievable rate.
	PFFairnessCoeff float64
}

// New builds a policy of the given kind.
func New(kind Kind, params Params) (Policy, error) {
	switch Kind(strings.ToLower(string(kind))) {
	case KindRoundRobin, "":
		return NewRoundRobin(), nil
	case KindProportionalFair, "pf":
		return NewProportionalFair(params.PFAlpha, params.PFFairnessCoeff), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, kind)
	}
}
