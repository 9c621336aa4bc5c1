// Package preferences decides whether a job's channel is enabled for the
// subscriber under the layered preference model.
package preferences

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/courierhq/courier/pkg/execution"
	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/persistence"
)

// layerDetail maps each preference layer to its audit detail code, so a
// suppressed send always names the layer responsible.
var layerDetail = map[models.PreferenceLayer]string{
	models.LayerWorkflowResource:   execution.DetailFilteredByWorkflowResourcePreferences,
	models.LayerSubscriberWorkflow: execution.DetailFilteredBySubscriberWorkflowPreferences,
	models.LayerSubscriberGlobal:   execution.DetailFilteredBySubscriberGlobalPreferences,
	models.LayerStatelessWorkflow:  execution.DetailFilteredByStatelessWorkflowPreferences,
}

// Resolution reports the decision and the layer that made it.
type Resolution struct {
	Enabled bool
	Layer   models.PreferenceLayer
}

// Resolver evaluates channel preferences for deliverable steps.
type Resolver struct {
	preferences persistence.PreferenceRepository
	audit       *execution.Writer
	logger      *slog.Logger
}

func NewResolver(preferences persistence.PreferenceRepository, audit *execution.Writer, logger *slog.Logger) *Resolver {
	return &Resolver{
		preferences: preferences,
		audit:       audit,
		logger:      logger.With("module", "preference_resolver"),
	}
}

// Resolve returns whether the job's channel may deliver. Non-channel action
// steps always resolve to enabled; preferences only gate deliverable
// channels. When a layer disables the channel, an audit entry identifies the
// layer. The workflow may be nil for stateless executions, in which case the
// caller-provided stateless preference layer applies.
func (r *Resolver) Resolve(ctx context.Context, job *models.Job, workflow *models.Workflow, stateless *models.PreferenceChannels) (Resolution, error) {
	channel, deliverable := job.Type.Channel()
	if !deliverable {
		return Resolution{Enabled: true}, nil
	}

	if workflow == nil {
		if stateless == nil {
			return Resolution{}, fmt.Errorf("no workflow and no stateless preferences for job %s", job.ID)
		}

		return r.decideStateless(ctx, job, channel, *stateless), nil
	}

	if workflow.Critical {
		// Critical workflows deliver regardless of subscriber preferences.
		return Resolution{Enabled: true, Layer: models.LayerWorkflowResource}, nil
	}

	resolution, snapshot, err := r.decideLayered(ctx, job, workflow, channel)
	if err != nil {
		return Resolution{}, err
	}

	if !resolution.Enabled {
		r.audit.Append(ctx, job, execution.Entry{
			Detail: layerDetail[resolution.Layer],
			Status: models.DetailStatusSuccess,
			Raw:    snapshot,
		})
	}

	return resolution, nil
}

func (r *Resolver) decideStateless(ctx context.Context, job *models.Job, channel models.ChannelType, channels models.PreferenceChannels) Resolution {
	enabled := true
	if value, set := channels.Get(channel); set {
		enabled = value
	}

	resolution := Resolution{Enabled: enabled, Layer: models.LayerStatelessWorkflow}

	if !enabled {
		r.audit.Append(ctx, job, execution.Entry{
			Detail: layerDetail[models.LayerStatelessWorkflow],
			Status: models.DetailStatusSuccess,
			Raw:    channels,
		})
	}

	return resolution
}

// decideLayered walks the layers from most to least specific; the first
// layer that explicitly sets a value for the channel wins. If no layer sets
// a value, the channel defaults to enabled.
func (r *Resolver) decideLayered(ctx context.Context, job *models.Job, workflow *models.Workflow, channel models.ChannelType) (Resolution, any, error) {
	type layer struct {
		name     models.PreferenceLayer
		channels *models.PreferenceChannels
		enabled  *bool // layer-wide toggle, applies before channel lookup
	}

	layers := make([]layer, 0, 3)

	workflowPref, err := r.preferences.SubscriberWorkflow(ctx, job.EnvironmentID, job.SubscriberID, job.WorkflowID)
	if err != nil && !errors.Is(err, persistence.ErrPreferenceNotFound) {
		return Resolution{}, nil, fmt.Errorf("failed to load subscriber workflow preference: %w", err)
	}

	if workflowPref != nil {
		layers = append(layers, layer{models.LayerSubscriberWorkflow, &workflowPref.Channels, workflowPref.Enabled})
	}

	globalPref, err := r.preferences.SubscriberGlobal(ctx, job.EnvironmentID, job.SubscriberID)
	if err != nil && !errors.Is(err, persistence.ErrPreferenceNotFound) {
		return Resolution{}, nil, fmt.Errorf("failed to load subscriber global preference: %w", err)
	}

	if globalPref != nil {
		layers = append(layers, layer{models.LayerSubscriberGlobal, &globalPref.Channels, globalPref.Enabled})
	}

	layers = append(layers, layer{models.LayerWorkflowResource, &workflow.PreferenceSettings, nil})

	for _, l := range layers {
		if l.enabled != nil && !*l.enabled {
			return Resolution{Enabled: false, Layer: l.name}, l.channels, nil
		}

		if value, set := l.channels.Get(channel); set {
			return Resolution{Enabled: value, Layer: l.name}, l.channels, nil
		}
	}

	return Resolution{Enabled: true, Layer: models.LayerWorkflowResource}, nil, nil
}
