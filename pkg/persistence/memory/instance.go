package memory

import (
	"context"
	"sort"
	"time"

	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/clinicdesk/pathway/pkg/persistence"
)

// InstanceRepository is the in-memory instance store.
type InstanceRepository struct {
	store *Persistence
}

func (r *InstanceRepository) Create(_ context.Context, instance *models.Instance) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now().UTC()

	if instance.ID == "" {
		instance.ID = newID()
	}

	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}

	instance.UpdatedAt = now

	if instance.Version == 0 {
		instance.Version = 1
	}

	r.store.instances[instance.ID] = cloneInstance(instance)

	return nil
}

func (r *InstanceRepository) GetByID(_ context.Context, id, tenantID string) (*models.Instance, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	instance, ok := r.store.instances[id]
	if !ok || instance.TenantID != tenantID {
		return nil, persistence.NewInstanceError("GetByID", id, persistence.ErrInstanceNotFound)
	}

	return cloneInstance(instance), nil
}

func (r *InstanceRepository) List(_ context.Context, tenantID string, opts persistence.ListInstancesOptions) ([]*models.Instance, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	instances := make([]*models.Instance, 0)

	for _, instance := range r.store.instances {
		if instance.TenantID != tenantID {
			continue
		}

		if opts.Status != nil && instance.Status != *opts.Status {
			continue
		}

		instances = append(instances, cloneInstance(instance))
	}

	sort.SliceStable(instances, func(i, j int) bool {
		if instances[i].CreatedAt.Equal(instances[j].CreatedAt) {
			return instances[i].ID < instances[j].ID
		}

		return instances[i].CreatedAt.After(instances[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(instances) {
			return []*models.Instance{}, nil
		}

		instances = instances[opts.Offset:]
	}

	if opts.Limit > 0 && opts.Limit < len(instances) {
		instances = instances[:opts.Limit]
	}

	return instances, nil
}

func (r *InstanceRepository) ApplyStep(_ context.Context, instance *models.Instance, expectedVersion int64, step *models.HistoryEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.instances[instance.ID]
	if !ok || stored.TenantID != instance.TenantID {
		return persistence.NewInstanceError("ApplyStep", instance.ID, persistence.ErrInstanceNotFound)
	}

	if stored.Version != expectedVersion {
		return persistence.NewInstanceError("ApplyStep", instance.ID, persistence.ErrVersionConflict)
	}

	now := time.Now().UTC()

	step.Seq = len(stored.History) + 1
	if step.RecordedAt.IsZero() {
		step.RecordedAt = now
	}

	stored.History = append(stored.History, *step)
	stored.TemplateID = instance.TemplateID
	stored.CurrentNodeID = instance.CurrentNodeID
	stored.Status = instance.Status
	stored.Version++
	stored.UpdatedAt = now

	if instance.Status == models.InstanceStatusCompleted {
		stored.CompletedAt = &now
	}

	instance.Version = stored.Version
	instance.UpdatedAt = stored.UpdatedAt
	instance.History = append([]models.HistoryEntry(nil), stored.History...)

	if stored.CompletedAt != nil {
		at := *stored.CompletedAt
		instance.CompletedAt = &at
	}

	return nil
}

func (r *InstanceRepository) UpdateStatus(_ context.Context, instance *models.Instance, expectedVersion int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.instances[instance.ID]
	if !ok || stored.TenantID != instance.TenantID {
		return persistence.NewInstanceError("UpdateStatus", instance.ID, persistence.ErrInstanceNotFound)
	}

	if stored.Version != expectedVersion {
		return persistence.NewInstanceError("UpdateStatus", instance.ID, persistence.ErrVersionConflict)
	}

	now := time.Now().UTC()

	stored.Status = instance.Status
	stored.Version++
	stored.UpdatedAt = now

	if instance.Status == models.InstanceStatusCompleted {
		stored.CompletedAt = &now
	}

	instance.Version = stored.Version
	instance.UpdatedAt = stored.UpdatedAt

	return nil
}
