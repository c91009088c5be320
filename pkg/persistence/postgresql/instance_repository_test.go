package postgresql_test

import (
	"context"
	"testing"

	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/clinicdesk/pathway/pkg/persistence"
	"github.com/clinicdesk/pathway/pkg/persistence/postgresql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startInstance(ctx context.Context, t *testing.T, p *postgresql.Persistence, tenantID string) (*models.Instance, *models.Template) {
	t.Helper()

	template := createSample(ctx, t, p, models.ForTenant(tenantID), "Runnable "+uuid.New().String())

	instance := &models.Instance{
		TemplateID:    template.ID,
		TenantID:      tenantID,
		Reference:     "DOC-42",
		Category:      "intake",
		CurrentNodeID: template.Nodes[0].ID,
		Status:        models.InstanceStatusInProgress,
		CreatedBy:     "user-1",
	}
	err := p.InstanceRepository().Create(ctx, instance)
	require.NoError(t, err)

	return instance, template
}

func TestInstanceRepository_CreateAndGetByID(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	instance, template := startInstance(ctx, t, p, "tenant-1")
	assert.NotEmpty(t, instance.ID)
	assert.Equal(t, int64(1), instance.Version)

	loaded, err := p.InstanceRepository().GetByID(ctx, instance.ID, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, template.ID, loaded.TemplateID)
	assert.Equal(t, "DOC-42", loaded.Reference)
	assert.Equal(t, models.InstanceStatusInProgress, loaded.Status)
	assert.Empty(t, loaded.History)

	// Another tenant cannot see the run.
	_, err = p.InstanceRepository().GetByID(ctx, instance.ID, "tenant-2")
	assert.True(t, persistence.IsInstanceNotFound(err))
}

func TestInstanceRepository_ApplyStep_AppendsHistory(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	instance, template := startInstance(ctx, t, p, "tenant-1")
	questionID := template.Nodes[0].ID
	endID := template.Nodes[1].ID

	option := template.OptionsFrom(questionID)[0]

	instance.CurrentNodeID = endID
	err := p.InstanceRepository().ApplyStep(ctx, instance, 1, &models.HistoryEntry{
		FromNodeID: questionID,
		ChoiceKind: models.ChoiceKindOption,
		ChoiceID:   option.ID,
		ToNodeID:   endID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), instance.Version)
	require.Len(t, instance.History, 1)
	assert.Equal(t, 1, instance.History[0].Seq)

	instance.Status = models.InstanceStatusCompleted
	err = p.InstanceRepository().ApplyStep(ctx, instance, 2, &models.HistoryEntry{
		FromNodeID: endID,
		ChoiceKind: models.ChoiceKindContinue,
		ChoiceID:   models.ContinueChoiceID,
		ToNodeID:   endID,
	})
	require.NoError(t, err)

	loaded, err := p.InstanceRepository().GetByID(ctx, instance.ID, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, loaded.Status)
	require.NotNil(t, loaded.CompletedAt)
	require.Len(t, loaded.History, 2)
	assert.Equal(t, 1, loaded.History[0].Seq)
	assert.Equal(t, 2, loaded.History[1].Seq)
	assert.Equal(t, option.ID, loaded.History[0].ChoiceID)
	assert.Empty(t, loaded.History[0].ToTemplateID)
}

func TestInstanceRepository_ApplyStep_VersionConflict(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	instance, template := startInstance(ctx, t, p, "tenant-1")
	endID := template.Nodes[1].ID

	step := func() *models.HistoryEntry {
		return &models.HistoryEntry{
			FromNodeID: template.Nodes[0].ID,
			ChoiceKind: models.ChoiceKindContinue,
			ChoiceID:   models.ContinueChoiceID,
			ToNodeID:   endID,
		}
	}

	instance.CurrentNodeID = endID
	err := p.InstanceRepository().ApplyStep(ctx, instance, 1, step())
	require.NoError(t, err)

	// A second writer advancing from the same stamp loses.
	err = p.InstanceRepository().ApplyStep(ctx, instance, 1, step())
	assert.True(t, persistence.IsVersionConflict(err))

	loaded, err := p.InstanceRepository().GetByID(ctx, instance.ID, "tenant-1")
	require.NoError(t, err)
	assert.Len(t, loaded.History, 1, "the losing step must not be recorded")
}

func TestInstanceRepository_ApplyStep_CrossTemplateJump(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	instance, template := startInstance(ctx, t, p, "tenant-1")
	target := createSample(ctx, t, p, models.ForTenant("tenant-1"), "Jump target")

	instance.TemplateID = target.ID
	instance.CurrentNodeID = target.Nodes[0].ID
	err := p.InstanceRepository().ApplyStep(ctx, instance, 1, &models.HistoryEntry{
		FromNodeID:   template.Nodes[0].ID,
		ChoiceKind:   models.ChoiceKindLink,
		ChoiceID:     "link-1",
		ToNodeID:     target.Nodes[0].ID,
		ToTemplateID: target.ID,
	})
	require.NoError(t, err)

	loaded, err := p.InstanceRepository().GetByID(ctx, instance.ID, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, target.ID, loaded.TemplateID)
	require.Len(t, loaded.History, 1)
	assert.Equal(t, target.ID, loaded.History[0].ToTemplateID)
}

func TestInstanceRepository_UpdateStatus_Abandon(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	instance, _ := startInstance(ctx, t, p, "tenant-1")

	instance.Status = models.InstanceStatusAbandoned
	err := p.InstanceRepository().UpdateStatus(ctx, instance, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), instance.Version)

	loaded, err := p.InstanceRepository().GetByID(ctx, instance.ID, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusAbandoned, loaded.Status)
	assert.Nil(t, loaded.CompletedAt)
	assert.Empty(t, loaded.History, "abandonment records no step")
}

func TestInstanceRepository_List(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	first, _ := startInstance(ctx, t, p, "tenant-1")
	second, _ := startInstance(ctx, t, p, "tenant-1")
	startInstance(ctx, t, p, "tenant-2")

	second.Status = models.InstanceStatusAbandoned
	require.NoError(t, p.InstanceRepository().UpdateStatus(ctx, second, 1))

	all, err := p.InstanceRepository().List(ctx, "tenant-1", persistence.ListInstancesOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	running := models.InstanceStatusInProgress
	active, err := p.InstanceRepository().List(ctx, "tenant-1", persistence.ListInstancesOptions{Status: &running})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, first.ID, active[0].ID)

	paged, err := p.InstanceRepository().List(ctx, "tenant-1", persistence.ListInstancesOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, paged, 1)
}
