// internal/service/resolver.go
package service

import (
	"github.com/unclebandit/coursetrack-backend/internal/auth"
	appErrors "github.com/unclebandit/coursetrack-backend/internal/errors"
	"github.com/unclebandit/coursetrack-backend/internal/model"
	"github.com/unclebandit/coursetrack-backend/internal/repository"
)

// RecipientResolver filters candidate recipient ids down to the ones
// the requester's scope may message. Pure authorization filter plus a
// read-only directory lookup; no side effects.
type RecipientResolver struct {
	Instructors repository.InstructorRepositoryInterface
}

// Resolve returns the authorized recipients annotated with directory
// display data, and the ids that were rejected (out of scope or
// unknown). Rejecting every candidate is an authorization error, not a
// zero-recipient job.
func (r *RecipientResolver) Resolve(requesterScope string, candidateIDs []string) ([]*model.Recipient, []string, error) {
	if len(candidateIDs) == 0 {
		return nil, nil, appErrors.NewEmptyCandidateSet()
	}

	authorized := []*model.Recipient{}
	rejected := []string{}

	for _, id := range candidateIDs {
		inst, err := r.Instructors.GetByID(id)
		if err != nil {
			return nil, nil, err
		}
		if inst == nil || !auth.ScopeCovers(requesterScope, inst.ScopeTag) {
			rejected = append(rejected, id)
			continue
		}
		authorized = append(authorized, &model.Recipient{
			InstructorID:   inst.ID,
			Email:          inst.Email,
			DisplayName:    inst.DisplayName,
			ScopeTag:       inst.ScopeTag,
			DeliveryStatus: model.DeliveryPending,
		})
	}

	if len(authorized) == 0 {
		return nil, rejected, appErrors.NewUnauthorized(requesterScope)
	}
	return authorized, rejected, nil
}
