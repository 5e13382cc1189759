// internal/services/validation_service.go
package services

import (
	"context"

	"github.com/aetflow/aet-backend/internal/conflict"
	"github.com/aetflow/aet-backend/internal/models"
)

// ValidationService exposes the conflict resolver with the configured
// default policy. Callers may override strategy or threshold per call.
type ValidationService struct {
	resolver *conflict.Resolver
	policy   conflict.Policy
}

type PolicyOverride struct {
	Strategy      string `json:"strategy,omitempty"`
	ThresholdDays *int   `json:"threshold_days,omitempty" validate:"omitempty,min=0"`
}

type ValidateCompositionRequest struct {
	State       string            `json:"state" validate:"required"`
	Composition conflict.PlateSet `json:"composition"`
	PolicyOverride
}

type ValidateStatesRequest struct {
	States      []string          `json:"states" validate:"required,min=1"`
	Composition conflict.PlateSet `json:"composition"`
	PolicyOverride
}

type ClassifyRequest struct {
	Composition conflict.PlateSet `json:"composition"`
}

type ClassifyResult struct {
	CompositionType conflict.CompositionType `json:"composition_type"`
	Composition     conflict.PlateSet        `json:"composition"`
	SearchPlates    []string                 `json:"search_plates"`
}

func NewValidationService(resolver *conflict.Resolver, policy conflict.Policy) *ValidationService {
	return &ValidationService{
		resolver: resolver,
		policy:   policy,
	}
}

func (s *ValidationService) DefaultPolicy() conflict.Policy {
	return s.policy
}

// PolicyFor applies override on top of the default policy.
func (s *ValidationService) PolicyFor(override PolicyOverride) (conflict.Policy, error) {
	policy := s.policy
	if override.Strategy != "" {
		strategy, err := conflict.ParseStrategy(override.Strategy)
		if err != nil {
			return conflict.Policy{}, err
		}
		policy.Strategy = strategy
	}
	if override.ThresholdDays != nil {
		policy.ThresholdDays = *override.ThresholdDays
	}
	return policy, policy.Validate()
}

func (s *ValidationService) Classify(req *ClassifyRequest) (*ClassifyResult, error) {
	compositionType, err := conflict.Classify(req.Composition)
	if err != nil {
		return nil, err
	}
	return &ClassifyResult{
		CompositionType: compositionType,
		Composition:     req.Composition.Normalized(),
		SearchPlates:    req.Composition.SearchPlates(),
	}, nil
}

func (s *ValidationService) ValidateComposition(ctx context.Context, req *ValidateCompositionRequest) (*conflict.Verdict, error) {
	state, err := conflict.ParseState(req.State)
	if err != nil {
		return nil, err
	}
	policy, err := s.PolicyFor(req.PolicyOverride)
	if err != nil {
		return nil, err
	}

	verdict, err := s.resolver.ValidateComposition(ctx, state, req.Composition, policy)
	if err != nil {
		return nil, err
	}
	return &verdict, nil
}

func (s *ValidationService) ValidateStates(ctx context.Context, req *ValidateStatesRequest) ([]conflict.Verdict, error) {
	states, err := parseStates(req.States)
	if err != nil {
		return nil, err
	}
	policy, err := s.PolicyFor(req.PolicyOverride)
	if err != nil {
		return nil, err
	}
	return s.resolver.ValidateStates(ctx, states, req.Composition, policy)
}

// parseStates canonicalizes codes and drops duplicates, keeping first-seen order.
func parseStates(raw []string) ([]models.StateCode, error) {
	states := make([]models.StateCode, 0, len(raw))
	seen := make(map[models.StateCode]bool, len(raw))
	for _, r := range raw {
		state, err := conflict.ParseState(r)
		if err != nil {
			return nil, err
		}
		if seen[state] {
			continue
		}
		seen[state] = true
		states = append(states, state)
	}
	return states, nil
}
