package memory_test

import (
	"testing"

	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/clinicdesk/pathway/pkg/persistence"
	"github.com/clinicdesk/pathway/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func createTemplate(t *testing.T, store *memory.Persistence, scope models.Scope, name string) *models.Template {
	t.Helper()

	template := &models.Template{
		Scope:  scope,
		Name:   name,
		Status: models.TemplateStatusDraft,
		Active: true,
	}

	err := store.TemplateRepository().Create(t.Context(), template)
	require.NoError(t, err)

	return template
}

func addNode(t *testing.T, store *memory.Persistence, template *models.Template, nodeType models.NodeType, sortOrder int) *models.Node {
	t.Helper()

	node := &models.Node{
		Type:      nodeType,
		Title:     string(nodeType),
		SortOrder: sortOrder,
	}

	err := store.GraphRepository().CreateNode(t.Context(), template.ID, template.Scope, template.Version, node)
	require.NoError(t, err)

	template.Version++

	return node
}

func TestTemplateRepository_ScopeIsolation(t *testing.T) {
	store := memory.NewPersistence()
	template := createTemplate(t, store, models.ForTenant("tenant-a"), "Clinic letter received")

	// Tenant B cannot read tenant A's template even with a valid id.
	_, err := store.TemplateRepository().GetByID(t.Context(), template.ID, models.ForTenant("tenant-b"))
	assert.True(t, persistence.IsTemplateNotFound(err))

	_, err = store.TemplateRepository().GetByID(t.Context(), template.ID, models.ForTenant("tenant-a"))
	assert.NoError(t, err)
}

func TestTemplateRepository_GetForRuntime_GlobalFallback(t *testing.T) {
	store := memory.NewPersistence()
	global := createTemplate(t, store, models.Global, "Shared default")

	found, err := store.TemplateRepository().GetForRuntime(t.Context(), global.ID, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, global.ID, found.ID)
}

func TestTemplateRepository_DuplicateNameWithinScope(t *testing.T) {
	store := memory.NewPersistence()
	createTemplate(t, store, models.ForTenant("tenant-a"), "Same name")

	err := store.TemplateRepository().Create(t.Context(), &models.Template{
		Scope:  models.ForTenant("tenant-a"),
		Name:   "Same name",
		Status: models.TemplateStatusDraft,
	})
	assert.True(t, persistence.IsDuplicateTemplateName(err))

	// Same name in another scope is fine.
	err = store.TemplateRepository().Create(t.Context(), &models.Template{
		Scope:  models.ForTenant("tenant-b"),
		Name:   "Same name",
		Status: models.TemplateStatusDraft,
	})
	assert.NoError(t, err)
}

func TestTemplateRepository_UpdateMeta_VersionConflict(t *testing.T) {
	store := memory.NewPersistence()
	template := createTemplate(t, store, models.Global, "Versioned")

	template.Description = "first writer"
	err := store.TemplateRepository().UpdateMeta(t.Context(), template, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), template.Version)

	// A second writer still holding version 1 loses.
	stale := *template
	stale.Description = "second writer"
	err = store.TemplateRepository().UpdateMeta(t.Context(), &stale, 1)
	assert.True(t, persistence.IsVersionConflict(err))
}

func TestGraphRepository_DeleteNode_Cascade(t *testing.T) {
	store := memory.NewPersistence()
	template := createTemplate(t, store, models.Global, "Cascade")

	question := addNode(t, store, template, models.NodeTypeQuestion, 0)
	target := addNode(t, store, template, models.NodeTypeEnd, 1)
	other := addNode(t, store, template, models.NodeTypeEnd, 2)

	graph := store.GraphRepository()

	inbound := &models.AnswerOption{SourceNodeID: question.ID, Label: "Yes", TargetNodeID: strPtr(target.ID)}
	err := graph.CreateOption(t.Context(), template.ID, template.Scope, template.Version, inbound)
	require.NoError(t, err)
	template.Version++

	untouched := &models.AnswerOption{SourceNodeID: question.ID, Label: "No", TargetNodeID: strPtr(other.ID)}
	err = graph.CreateOption(t.Context(), template.ID, template.Scope, template.Version, untouched)
	require.NoError(t, err)
	template.Version++

	outgoing := &models.AnswerOption{SourceNodeID: target.ID, Label: "Orphaned", TargetNodeID: nil}
	err = graph.CreateOption(t.Context(), template.ID, template.Scope, template.Version, outgoing)
	require.NoError(t, err)
	template.Version++

	err = graph.DeleteNode(t.Context(), template.ID, template.Scope, template.Version, target.ID)
	require.NoError(t, err)

	reloaded, err := store.TemplateRepository().GetByID(t.Context(), template.ID, template.Scope)
	require.NoError(t, err)

	assert.Nil(t, reloaded.NodeByID(target.ID))
	assert.Nil(t, reloaded.OptionByID(outgoing.ID), "options sourced at the deleted node are removed")

	// The inbound option keeps its label but dangles.
	kept := reloaded.OptionByID(inbound.ID)
	require.NotNil(t, kept)
	assert.Equal(t, "Yes", kept.Label)
	assert.True(t, kept.Dangling())

	// Options pointing elsewhere are untouched.
	noOption := reloaded.OptionByID(untouched.ID)
	require.NotNil(t, noOption)
	require.NotNil(t, noOption.TargetNodeID)
	assert.Equal(t, other.ID, *noOption.TargetNodeID)
}

func TestGraphRepository_RepositionNodes_Atomic(t *testing.T) {
	store := memory.NewPersistence()
	template := createTemplate(t, store, models.Global, "Reposition")
	other := createTemplate(t, store, models.Global, "Other template")

	a := addNode(t, store, template, models.NodeTypeInstruction, 0)
	b := addNode(t, store, template, models.NodeTypeEnd, 1)
	foreign := addNode(t, store, other, models.NodeTypeEnd, 0)

	graph := store.GraphRepository()

	// A batch containing a foreign node persists nothing.
	err := graph.RepositionNodes(t.Context(), template.ID, template.Scope, template.Version, []persistence.NodePosition{
		{NodeID: a.ID, X: 100, Y: 100},
		{NodeID: foreign.ID, X: 50, Y: 50},
	})
	assert.True(t, persistence.IsForeignNode(err))

	reloaded, err := store.TemplateRepository().GetByID(t.Context(), template.ID, template.Scope)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.NodeByID(a.ID).PositionX)

	// A valid batch persists every position.
	err = graph.RepositionNodes(t.Context(), template.ID, template.Scope, template.Version, []persistence.NodePosition{
		{NodeID: a.ID, X: 10, Y: 20},
		{NodeID: b.ID, X: 30, Y: 40},
	})
	require.NoError(t, err)

	reloaded, err = store.TemplateRepository().GetByID(t.Context(), template.ID, template.Scope)
	require.NoError(t, err)
	assert.Equal(t, 10, reloaded.NodeByID(a.ID).PositionX)
	assert.Equal(t, 40, reloaded.NodeByID(b.ID).PositionY)
}

func TestGraphRepository_CopyStyles(t *testing.T) {
	store := memory.NewPersistence()
	source := createTemplate(t, store, models.Global, "Style source")
	dest := createTemplate(t, store, models.Global, "Style destination")

	graph := store.GraphRepository()

	err := graph.UpsertStyle(t.Context(), source.ID, source.Scope, source.Version, &models.NodeStyle{
		NodeType:   models.NodeTypeQuestion,
		Background: "#source-question",
	})
	require.NoError(t, err)
	source.Version++

	err = graph.UpsertStyle(t.Context(), source.ID, source.Scope, source.Version, &models.NodeStyle{
		NodeType:   models.NodeTypeEnd,
		Background: "#source-end",
	})
	require.NoError(t, err)

	err = graph.UpsertStyle(t.Context(), dest.ID, dest.Scope, dest.Version, &models.NodeStyle{
		NodeType:   models.NodeTypeQuestion,
		Background: "#dest-question",
	})
	require.NoError(t, err)
	dest.Version++

	// Fill gaps only: existing question row survives, end row is copied.
	err = graph.CopyStyles(t.Context(), dest.ID, dest.Scope, dest.Version, source.ID, false)
	require.NoError(t, err)
	dest.Version++

	reloaded, err := store.TemplateRepository().GetByID(t.Context(), dest.ID, dest.Scope)
	require.NoError(t, err)
	assert.Equal(t, "#dest-question", reloaded.StyleFor(models.NodeTypeQuestion).Background)
	assert.Equal(t, "#source-end", reloaded.StyleFor(models.NodeTypeEnd).Background)

	// Overwrite replaces the destination row.
	err = graph.CopyStyles(t.Context(), dest.ID, dest.Scope, dest.Version, source.ID, true)
	require.NoError(t, err)

	reloaded, err = store.TemplateRepository().GetByID(t.Context(), dest.ID, dest.Scope)
	require.NoError(t, err)
	assert.Equal(t, "#source-question", reloaded.StyleFor(models.NodeTypeQuestion).Background)
}

func TestInstanceRepository_ApplyStep_AppendsOneEntry(t *testing.T) {
	store := memory.NewPersistence()

	instance := &models.Instance{
		TemplateID:    "tpl-1",
		TenantID:      "tenant-a",
		CurrentNodeID: "node-a",
		Status:        models.InstanceStatusInProgress,
	}

	err := store.InstanceRepository().Create(t.Context(), instance)
	require.NoError(t, err)

	instance.CurrentNodeID = "node-b"
	err = store.InstanceRepository().ApplyStep(t.Context(), instance, 1, &models.HistoryEntry{
		FromNodeID: "node-a",
		ChoiceKind: models.ChoiceKindOption,
		ChoiceID:   "opt-1",
		ToNodeID:   "node-b",
	})
	require.NoError(t, err)

	reloaded, err := store.InstanceRepository().GetByID(t.Context(), instance.ID, "tenant-a")
	require.NoError(t, err)
	require.Len(t, reloaded.History, 1)
	assert.Equal(t, 1, reloaded.History[0].Seq)
	assert.Equal(t, "node-b", reloaded.CurrentNodeID)
	assert.Equal(t, int64(2), reloaded.Version)
	assert.False(t, reloaded.History[0].RecordedAt.IsZero())
}

func TestInstanceRepository_ApplyStep_VersionConflict(t *testing.T) {
	store := memory.NewPersistence()

	instance := &models.Instance{
		TemplateID:    "tpl-1",
		TenantID:      "tenant-a",
		CurrentNodeID: "node-a",
		Status:        models.InstanceStatusInProgress,
	}

	err := store.InstanceRepository().Create(t.Context(), instance)
	require.NoError(t, err)

	first := *instance
	first.CurrentNodeID = "node-b"
	err = store.InstanceRepository().ApplyStep(t.Context(), &first, 1, &models.HistoryEntry{
		FromNodeID: "node-a", ChoiceKind: models.ChoiceKindOption, ChoiceID: "opt-1", ToNodeID: "node-b",
	})
	require.NoError(t, err)

	// The racing writer still holds version 1 and must lose.
	second := *instance
	second.CurrentNodeID = "node-c"
	err = store.InstanceRepository().ApplyStep(t.Context(), &second, 1, &models.HistoryEntry{
		FromNodeID: "node-a", ChoiceKind: models.ChoiceKindOption, ChoiceID: "opt-2", ToNodeID: "node-c",
	})
	assert.True(t, persistence.IsVersionConflict(err))

	reloaded, err := store.InstanceRepository().GetByID(t.Context(), instance.ID, "tenant-a")
	require.NoError(t, err)
	assert.Len(t, reloaded.History, 1)
	assert.Equal(t, "node-b", reloaded.CurrentNodeID)
}

func TestInstanceRepository_TenantIsolation(t *testing.T) {
	store := memory.NewPersistence()

	instance := &models.Instance{
		TemplateID:    "tpl-1",
		TenantID:      "tenant-a",
		CurrentNodeID: "node-a",
		Status:        models.InstanceStatusInProgress,
	}

	err := store.InstanceRepository().Create(t.Context(), instance)
	require.NoError(t, err)

	_, err = store.InstanceRepository().GetByID(t.Context(), instance.ID, "tenant-b")
	assert.True(t, persistence.IsInstanceNotFound(err))
}

func TestInstanceRepository_List_FilterAndPage(t *testing.T) {
	store := memory.NewPersistence()
	repo := store.InstanceRepository()

	for range 3 {
		err := repo.Create(t.Context(), &models.Instance{
			TemplateID: "tpl-1", TenantID: "tenant-a", CurrentNodeID: "n", Status: models.InstanceStatusInProgress,
		})
		require.NoError(t, err)
	}

	abandoned := &models.Instance{
		TemplateID: "tpl-1", TenantID: "tenant-a", CurrentNodeID: "n", Status: models.InstanceStatusAbandoned,
	}
	require.NoError(t, repo.Create(t.Context(), abandoned))

	inProgress := models.InstanceStatusInProgress

	listed, err := repo.List(t.Context(), "tenant-a", persistence.ListInstancesOptions{Status: &inProgress})
	require.NoError(t, err)
	assert.Len(t, listed, 3)

	listed, err = repo.List(t.Context(), "tenant-a", persistence.ListInstancesOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	listed, err = repo.List(t.Context(), "tenant-b", persistence.ListInstancesOptions{})
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestPersistence_ReturnsCopies(t *testing.T) {
	store := memory.NewPersistence()
	template := createTemplate(t, store, models.Global, "Copies")
	addNode(t, store, template, models.NodeTypeInstruction, 0)

	first, err := store.TemplateRepository().GetByID(t.Context(), template.ID, models.Global)
	require.NoError(t, err)

	// Mutating a returned copy must not leak into the store.
	first.Nodes[0].Title = "mutated"

	second, err := store.TemplateRepository().GetByID(t.Context(), template.ID, models.Global)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", second.Nodes[0].Title)
}
