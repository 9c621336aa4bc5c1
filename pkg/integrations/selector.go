// Package integrations chooses which configured provider integration handles
// a channel send.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/courierhq/courier/pkg/conditions"
	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/persistence"
	"github.com/courierhq/courier/pkg/variables"
)

// SelectionKind discriminates the selection outcome. Callers are forced to
// handle every case; "not found" is a value here, not an error.
type SelectionKind string

const (
	// Found carries the selected integration.
	Found SelectionKind = "found"
	// NoActive means no active integration qualifies for the channel.
	NoActive SelectionKind = "no_active"
	// NoTenantMatch means a tenant was specified but no candidate's
	// conditions matched it. Surfaced as the no_tenant_found job outcome.
	NoTenantMatch SelectionKind = "no_tenant_match"
)

// SelectionOutcome is the result of one selection.
type SelectionOutcome struct {
	Kind        SelectionKind
	Integration *models.Integration
}

// Query scopes one selection.
type Query struct {
	EnvironmentID string
	Channel       models.ChannelType
	// Identifier, when set, bypasses condition evaluation and selects the
	// active integration with that identifier verbatim.
	Identifier string
	// ProviderID restricts candidates to one provider, used when a
	// subscriber channel setting is bound to a specific provider.
	ProviderID string
}

// Selector applies tenant-conditional routing and deterministic fallback
// over the candidate set.
type Selector struct {
	integrations persistence.IntegrationRepository
	evaluator    *conditions.Evaluator
	logger       *slog.Logger
}

func NewSelector(integrations persistence.IntegrationRepository, evaluator *conditions.Evaluator, logger *slog.Logger) *Selector {
	return &Selector{
		integrations: integrations,
		evaluator:    evaluator,
		logger:       logger.With("module", "integration_selector"),
	}
}

// Select resolves the integration for a job's channel send. Selection is a
// pure function of the candidate set: given the same integrations it always
// returns the same one.
func (s *Selector) Select(ctx context.Context, job *models.Job, query Query, vars *variables.Context) (SelectionOutcome, error) {
	qualified, kind, err := s.Qualified(ctx, job, query, vars)
	if err != nil {
		return SelectionOutcome{}, err
	}

	if kind != Found {
		return SelectionOutcome{Kind: kind}, nil
	}

	return SelectionOutcome{Kind: Found, Integration: qualified[0]}, nil
}

// Qualified returns every active integration that passes the query's filters
// and condition evaluation, ranked by the same ordering Select uses. Channels
// that fan out across provider channels (push) dispatch through the whole
// set; Select takes the first.
func (s *Selector) Qualified(ctx context.Context, job *models.Job, query Query, vars *variables.Context) ([]*models.Integration, SelectionKind, error) {
	if query.Identifier != "" {
		outcome, err := s.selectByIdentifier(ctx, query)
		if err != nil {
			return nil, NoActive, err
		}

		if outcome.Kind != Found {
			return nil, outcome.Kind, nil
		}

		return []*models.Integration{outcome.Integration}, Found, nil
	}

	candidates, err := s.integrations.ByChannel(ctx, query.EnvironmentID, query.Channel)
	if err != nil {
		return nil, NoActive, fmt.Errorf("failed to load integrations for channel %s: %w", query.Channel, err)
	}

	active := make([]*models.Integration, 0, len(candidates))
	conditioned := false

	for _, candidate := range candidates {
		if !candidate.Active {
			continue
		}

		if query.ProviderID != "" && candidate.ProviderID != query.ProviderID {
			continue
		}

		if len(candidate.Conditions) > 0 {
			conditioned = true

			matched, err := s.evaluator.Evaluate(ctx, job, candidate.Conditions, vars)
			if err != nil {
				return nil, NoActive, fmt.Errorf("failed to evaluate conditions of integration %s: %w", candidate.Identifier, err)
			}

			if !matched.Passed {
				continue
			}
		}

		active = append(active, candidate)
	}

	if len(active) == 0 {
		if job.Tenant != nil && conditioned {
			return nil, NoTenantMatch, nil
		}

		return nil, NoActive, nil
	}

	return ranked(active), Found, nil
}

func (s *Selector) selectByIdentifier(ctx context.Context, query Query) (SelectionOutcome, error) {
	integration, err := s.integrations.ByIdentifier(ctx, query.EnvironmentID, query.Identifier)
	if err != nil {
		if errors.Is(err, persistence.ErrIntegrationNotFound) {
			return SelectionOutcome{Kind: NoActive}, nil
		}

		return SelectionOutcome{}, fmt.Errorf("failed to load integration %s: %w", query.Identifier, err)
	}

	if !integration.Active {
		return SelectionOutcome{Kind: NoActive}, nil
	}

	return SelectionOutcome{Kind: Found, Integration: integration}, nil
}

// ranked orders qualified candidates deterministically: primary first, then
// lowest priority number, then most recent activation, then id.
func ranked(candidates []*models.Integration) []*models.Integration {
	sorted := make([]*models.Integration, len(candidates))
	copy(sorted, candidates)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]

		if a.Primary != b.Primary {
			return a.Primary
		}

		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}

		if !a.ActivatedAt.Equal(b.ActivatedAt) {
			return a.ActivatedAt.After(b.ActivatedAt)
		}

		return a.ID < b.ID
	})

	return sorted
}
