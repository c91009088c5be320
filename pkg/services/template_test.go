package services

import (
	"testing"

	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplate_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	template, err := env.templates.Create(ctx, userAda, models.ForTenant(tenantA), CreateTemplateRequest{
		Name:        "  Lost documents  ",
		Description: "Reception script for lost documents",
		Kind:        "document",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, template.ID)
	assert.Equal(t, "Lost documents", template.Name, "name is trimmed")
	assert.Equal(t, models.TemplateStatusDraft, template.Status)
	assert.True(t, template.Active)
	assert.Equal(t, int64(1), template.Version)
}

func TestTemplate_Create_Forbidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	// A tenant admin cannot author global templates.
	_, err := env.templates.Create(ctx, userAda, models.Global, CreateTemplateRequest{Name: "Global script"})
	assert.True(t, IsForbiddenError(err))

	// A plain receptionist cannot author at all.
	_, err = env.templates.Create(ctx, userBob, models.ForTenant(tenantA), CreateTemplateRequest{Name: "Bob's script"})
	assert.True(t, IsForbiddenError(err))

	// Unknown users fail closed.
	_, err = env.templates.Create(ctx, "ghost", models.ForTenant(tenantA), CreateTemplateRequest{Name: "Ghost script"})
	assert.True(t, IsForbiddenError(err))
}

func TestTemplate_Create_NameRequired(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.templates.Create(t.Context(), userRoot, models.Global, CreateTemplateRequest{Name: "   "})
	assert.ErrorIs(t, err, ErrNameRequired)
	assert.True(t, IsValidationError(err))
}

func TestTemplate_UpdateMeta(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	template, err := env.templates.Create(ctx, userRoot, models.Global, CreateTemplateRequest{Name: "Original"})
	require.NoError(t, err)

	name := "Renamed"
	inactive := false

	updated, err := env.templates.UpdateMeta(ctx, userRoot, models.Global, template.ID, template.Version, UpdateTemplateRequest{
		Name:   &name,
		Active: &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.False(t, updated.Active)
	assert.Equal(t, int64(2), updated.Version)

	// A stale version stamp is rejected.
	_, err = env.templates.UpdateMeta(ctx, userRoot, models.Global, template.ID, template.Version, UpdateTemplateRequest{Name: &name})
	assert.True(t, IsConflictError(err))
}

func TestTemplate_ListAndScopeIsolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	_, err := env.templates.Create(ctx, userRoot, models.Global, CreateTemplateRequest{Name: "Global script"})
	require.NoError(t, err)

	_, err = env.templates.Create(ctx, userAda, models.ForTenant(tenantA), CreateTemplateRequest{Name: "Clinic A script"})
	require.NoError(t, err)

	tenantTemplates, err := env.templates.List(ctx, userAda, models.ForTenant(tenantA), false)
	require.NoError(t, err)
	require.Len(t, tenantTemplates, 1)
	assert.Equal(t, "Clinic A script", tenantTemplates[0].Name)

	// The other tenant's admin sees nothing of clinic-a.
	otherTemplates, err := env.templates.List(ctx, userCarol, models.ForTenant(tenantB), false)
	require.NoError(t, err)
	assert.Empty(t, otherTemplates)

	// And may not list clinic-a's scope at all.
	_, err = env.templates.List(ctx, userCarol, models.ForTenant(tenantA), false)
	assert.True(t, IsForbiddenError(err))
}

func TestTemplate_Delete(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	template, err := env.templates.Create(ctx, userRoot, models.Global, CreateTemplateRequest{Name: "Short lived"})
	require.NoError(t, err)

	err = env.templates.Delete(ctx, userRoot, models.Global, template.ID, template.Version)
	require.NoError(t, err)

	_, err = env.templates.Get(ctx, userRoot, models.Global, template.ID)
	assert.True(t, IsNotFoundError(err))
}
