// Package business resolves an incoming call to the business it belongs to.
package business

import (
	"fmt"

	"github.com/zulandar/afterhours/internal/models"
)

// Match methods, strongest to weakest.
const (
	MethodExactNumber       = "EXACT_NUMBER"
	MethodSoleTenant        = "SOLE_TENANT"
	MethodExplicitSelection = "EXPLICIT_SELECTION"
	MethodNone              = "NONE"
)

// Directory is the slice of the record store the resolver needs.
type Directory interface {
	FindBusinessByNumber(number string) (*models.Business, error)
	FindBusinessByID(id string) (*models.Business, error)
	ListBusinesses(limit int) ([]models.Business, error)
}

// Resolution describes how (or whether) a call was matched to a business.
type Resolution struct {
	Business    *models.Business
	Method      string
	Confidence  string
	NeedsReview bool
}

// Input holds the routing hints extracted from an inbound call payload.
type Input struct {
	DialedNumber string // the number the caller dialed
	IVRSelection string // keypad selection, when an IVR menu was offered
	BusinessID   string // explicit business id carried with the IVR selection
}

// Resolver matches calls to businesses against the directory. It never
// returns an error for a failed match; an unmatched call resolves to
// MethodNone with NeedsReview set.
type Resolver struct {
	dir Directory
}

func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve walks the match ladder: dialed-number lookup, then sole-tenant
// auto-select, then explicit IVR selection, then no match.
func (r *Resolver) Resolve(in Input) (Resolution, error) {
	if in.DialedNumber != "" {
		biz, err := r.dir.FindBusinessByNumber(in.DialedNumber)
		if err != nil {
			return Resolution{}, fmt.Errorf("business: lookup by number: %w", err)
		}
		if biz != nil {
			return Resolution{Business: biz, Method: MethodExactNumber, Confidence: "HIGH"}, nil
		}
	}

	// With a single registered business there is nothing to disambiguate.
	all, err := r.dir.ListBusinesses(2)
	if err != nil {
		return Resolution{}, fmt.Errorf("business: list: %w", err)
	}
	if len(all) == 1 {
		return Resolution{Business: &all[0], Method: MethodSoleTenant, Confidence: "MEDIUM"}, nil
	}

	if in.IVRSelection != "" && in.BusinessID != "" {
		biz, err := r.dir.FindBusinessByID(in.BusinessID)
		if err != nil {
			return Resolution{}, fmt.Errorf("business: lookup by id: %w", err)
		}
		if biz != nil {
			return Resolution{Business: biz, Method: MethodExplicitSelection, Confidence: "HIGH"}, nil
		}
	}

	return Resolution{Method: MethodNone, Confidence: "NONE", NeedsReview: true}, nil
}
