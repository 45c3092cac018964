// Package missions implements the Mission Registry (spec §4.3): the source
// of truth for mission metadata, the status state machine, and lookup by id.
package missions

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/nexus/internal/domain"
	"github.com/haasonsaas/nexus/internal/eventbus"
	"github.com/haasonsaas/nexus/internal/eventstore"
	"github.com/haasonsaas/nexus/internal/observability"
)

// Registry owns every Mission record, one lock per mission plus a short
// read-mostly lock for listing, per spec §5.
type Registry struct {
	store   eventstore.Store
	bus     *eventbus.Bus
	logger  *observability.Logger
	metrics *observability.Metrics

	mu       sync.RWMutex
	missions map[string]*entry
}

type entry struct {
	mu sync.Mutex
	m  domain.Mission
}

// New constructs a Registry backed by store for durable status-change
// events and bus for live fan-out. logger/metrics may be nil.
func New(store eventstore.Store, bus *eventbus.Bus, logger *observability.Logger, metrics *observability.Metrics) *Registry {
	return &Registry{
		store:    store,
		bus:      bus,
		logger:   logger,
		metrics:  metrics,
		missions: make(map[string]*entry),
	}
}

// Create registers a new mission, appends its creation mission_status_changed
// event, and returns the stored record.
func (r *Registry) Create(ctx context.Context, params domain.CreateMissionParams) (domain.Mission, error) {
	now := time.Now().UTC()
	m := domain.Mission{
		ID:            uuid.NewString(),
		Status:        domain.MissionActive,
		Title:         params.Title,
		WorkspaceID:   params.WorkspaceID,
		Agent:         params.Agent,
		Backend:       params.Backend,
		ModelOverride: params.ModelOverride,
		ConfigProfile: params.ConfigProfile,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := r.store.RegisterMission(ctx, m.ID); err != nil {
		return domain.Mission{}, domain.WrapError(domain.ErrStorage, "register mission", err)
	}

	r.mu.Lock()
	r.missions[m.ID] = &entry{m: m}
	r.mu.Unlock()

	if err := r.publishStatusChange(ctx, m.ID, "", domain.MissionActive, ""); err != nil {
		return domain.Mission{}, err
	}

	if r.metrics != nil {
		r.metrics.MissionsTotal.WithLabelValues(string(domain.MissionActive)).Inc()
		r.metrics.ActiveMissions.Inc()
	}
	if r.logger != nil {
		r.logger.Info(ctx, "mission created", "mission_id", m.ID, "workspace_id", m.WorkspaceID, "agent", m.Agent)
	}
	return m, nil
}

// Get looks up a mission by id.
func (r *Registry) Get(id string) (domain.Mission, error) {
	r.mu.RLock()
	e, ok := r.missions[id]
	r.mu.RUnlock()
	if !ok {
		return domain.Mission{}, domain.NewError(domain.ErrMissionNotFound, "mission "+id+" not found")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.m, nil
}

// List returns every mission ordered by updated_at desc, per spec §6.
func (r *Registry) List() []domain.Mission {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Mission, 0, len(r.missions))
	for _, e := range r.missions {
		e.mu.Lock()
		out = append(out, e.m)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// ListRunning returns every mission whose status is active.
func (r *Registry) ListRunning() []domain.Mission {
	all := r.List()
	out := all[:0:0]
	for _, m := range all {
		if m.Status == domain.MissionActive {
			out = append(out, m)
		}
	}
	return out
}

// SetStatus enforces the transition table in spec §4.3 and emits a
// mission_status_changed event with metadata {from, to, reason}.
func (r *Registry) SetStatus(ctx context.Context, id string, status domain.MissionStatus, reason string) (domain.Mission, error) {
	r.mu.RLock()
	e, ok := r.missions[id]
	r.mu.RUnlock()
	if !ok {
		return domain.Mission{}, domain.NewError(domain.ErrMissionNotFound, "mission "+id+" not found")
	}

	e.mu.Lock()
	from := e.m.Status
	if !domain.CanTransition(from, status) {
		e.mu.Unlock()
		if r.metrics != nil {
			r.metrics.MissionTransitionErrors.WithLabelValues(string(from), string(status)).Inc()
		}
		return domain.Mission{}, domain.NewError(domain.ErrInvalidTransition, fmt.Sprintf("cannot move mission %s from %s to %s", id, from, status))
	}
	now := time.Now().UTC()
	e.m.Status = status
	e.m.UpdatedAt = now
	if status == domain.MissionInterrupted {
		e.m.InterruptedAt = &now
	}
	result := e.m
	e.mu.Unlock()

	if err := r.publishStatusChange(ctx, id, from, status, reason); err != nil {
		return domain.Mission{}, err
	}
	if r.metrics != nil {
		r.metrics.MissionsTotal.WithLabelValues(string(status)).Inc()
		if status == domain.MissionActive {
			r.metrics.ActiveMissions.Inc()
		} else if from == domain.MissionActive {
			r.metrics.ActiveMissions.Dec()
		}
	}
	if r.logger != nil {
		r.logger.Info(ctx, "mission status changed", "mission_id", id, "from", from, "to", status, "reason", reason)
	}
	return result, nil
}

// Resume transitions an {interrupted, blocked, failed, completed} mission
// back to active (spec §4.3). It reports whether the transition actually
// happened (false if the mission was already active, per spec §8
// idempotence); the caller uses that to decide whether to give the Agent
// Loop a turn trigger, since the Registry has no queue to enqueue one into.
func (r *Registry) Resume(ctx context.Context, id string) (mission domain.Mission, transitioned bool, err error) {
	cur, err := r.Get(id)
	if err != nil {
		return domain.Mission{}, false, err
	}
	if cur.Status == domain.MissionActive {
		// Idempotent: resuming an already-active mission is a no-op (spec §8
		// round-trip law).
		return cur, false, nil
	}

	m, err := r.SetStatus(ctx, id, domain.MissionActive, "resume")
	if err != nil {
		return domain.Mission{}, false, err
	}
	return m, true, nil
}

func (r *Registry) publishStatusChange(ctx context.Context, missionID string, from, to domain.MissionStatus, reason string) error {
	stored, err := r.store.Append(ctx, missionID, domain.EventDraft{
		EventType: domain.EventMissionStatus,
		Metadata: map[string]any{
			"from":   string(from),
			"to":     string(to),
			"reason": reason,
		},
	})
	if err != nil {
		return domain.WrapError(domain.ErrStorage, "append mission_status_changed", err)
	}
	if r.bus != nil {
		r.bus.Publish(stored)
	}
	return nil
}
