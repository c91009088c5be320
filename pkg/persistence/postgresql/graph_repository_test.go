package postgresql_test

import (
	"testing"

	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/clinicdesk/pathway/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphRepository_CreateNode_BumpsVersion(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	template := createSample(ctx, t, p, models.Global, "Editable")

	node := &models.Node{Type: models.NodeTypePanel, Title: "Info panel", SortOrder: 2}
	err := p.GraphRepository().CreateNode(ctx, template.ID, models.Global, 1, node)
	require.NoError(t, err)
	assert.NotEmpty(t, node.ID)

	loaded, err := p.TemplateRepository().GetByID(ctx, template.ID, models.Global)
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Version)
	assert.NotNil(t, loaded.NodeByID(node.ID))

	// A writer still holding the old stamp is rejected.
	err = p.GraphRepository().CreateNode(ctx, template.ID, models.Global, 1, &models.Node{
		Type: models.NodeTypeEnd, Title: "Late",
	})
	assert.True(t, persistence.IsVersionConflict(err))
}

func TestGraphRepository_DeleteNode_Cascade(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	template := createSample(ctx, t, p, models.Global, "Cascade")

	questionID := template.Nodes[0].ID
	endID := template.Nodes[1].ID

	err := p.GraphRepository().DeleteNode(ctx, template.ID, models.Global, 1, endID)
	require.NoError(t, err)

	loaded, err := p.TemplateRepository().GetByID(ctx, template.ID, models.Global)
	require.NoError(t, err)
	assert.Nil(t, loaded.NodeByID(endID))
	require.NotNil(t, loaded.NodeByID(questionID))

	// The "Yes" option that pointed at the deleted node dangles with its
	// label intact.
	require.Len(t, loaded.Options, 2)

	for _, option := range loaded.Options {
		assert.True(t, option.Dangling())
	}
}

func TestGraphRepository_RepositionNodes_Atomic(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	template := createSample(ctx, t, p, models.Global, "Reposition")
	other := createSample(ctx, t, p, models.Global, "Other")

	a := template.Nodes[0]
	b := template.Nodes[1]
	foreign := other.Nodes[0]

	err := p.GraphRepository().RepositionNodes(ctx, template.ID, models.Global, 1, []persistence.NodePosition{
		{NodeID: a.ID, X: 100, Y: 110},
		{NodeID: foreign.ID, X: 1, Y: 2},
	})
	assert.True(t, persistence.IsForeignNode(err))

	loaded, err := p.TemplateRepository().GetByID(ctx, template.ID, models.Global)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.NodeByID(a.ID).PositionX, "failed batch must persist nothing")
	assert.Equal(t, int64(1), loaded.Version, "failed batch must not bump the version")

	err = p.GraphRepository().RepositionNodes(ctx, template.ID, models.Global, 1, []persistence.NodePosition{
		{NodeID: a.ID, X: 10, Y: 20},
		{NodeID: b.ID, X: 30, Y: 40},
	})
	require.NoError(t, err)

	loaded, err = p.TemplateRepository().GetByID(ctx, template.ID, models.Global)
	require.NoError(t, err)
	assert.Equal(t, 10, loaded.NodeByID(a.ID).PositionX)
	assert.Equal(t, 40, loaded.NodeByID(b.ID).PositionY)
}

func TestGraphRepository_OptionLifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	template := createSample(ctx, t, p, models.Global, "Options")
	questionID := template.Nodes[0].ID
	endID := template.Nodes[1].ID

	option := &models.AnswerOption{SourceNodeID: questionID, Label: "Maybe", TargetNodeID: nil}
	err := p.GraphRepository().CreateOption(ctx, template.ID, models.Global, 1, option)
	require.NoError(t, err)

	option.Label = "Maybe later"
	option.TargetNodeID = strPtr(endID)
	err = p.GraphRepository().UpdateOption(ctx, template.ID, models.Global, 2, option)
	require.NoError(t, err)

	loaded, err := p.TemplateRepository().GetByID(ctx, template.ID, models.Global)
	require.NoError(t, err)

	stored := loaded.OptionByID(option.ID)
	require.NotNil(t, stored)
	assert.Equal(t, "Maybe later", stored.Label)
	require.NotNil(t, stored.TargetNodeID)
	assert.Equal(t, endID, *stored.TargetNodeID)

	err = p.GraphRepository().DeleteOption(ctx, template.ID, models.Global, 3, option.ID)
	require.NoError(t, err)

	err = p.GraphRepository().DeleteOption(ctx, template.ID, models.Global, 4, option.ID)
	assert.ErrorIs(t, err, persistence.ErrOptionNotFound)
}

func TestGraphRepository_LinkLifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	template := createSample(ctx, t, p, models.Global, "Link source")
	target := createSample(ctx, t, p, models.Global, "Link target")

	link := &models.NodeLink{SourceNodeID: template.Nodes[0].ID, TargetTemplateID: target.ID}
	err := p.GraphRepository().CreateLink(ctx, template.ID, models.Global, 1, link)
	require.NoError(t, err)

	loaded, err := p.TemplateRepository().GetByID(ctx, template.ID, models.Global)
	require.NoError(t, err)
	require.Len(t, loaded.Links, 1)
	assert.Equal(t, target.ID, loaded.Links[0].TargetTemplateID)

	err = p.GraphRepository().DeleteLink(ctx, template.ID, models.Global, 2, link.ID)
	require.NoError(t, err)

	loaded, err = p.TemplateRepository().GetByID(ctx, template.ID, models.Global)
	require.NoError(t, err)
	assert.Empty(t, loaded.Links)
}

func TestGraphRepository_CopyStyles(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	source := createSample(ctx, t, p, models.Global, "Style source")
	dest := createSample(ctx, t, p, models.Global, "Style destination")

	// Source: question (from sample) + end style.
	err := p.GraphRepository().UpsertStyle(ctx, source.ID, models.Global, 1, &models.NodeStyle{
		NodeType: models.NodeTypeEnd, Background: "#src-end",
	})
	require.NoError(t, err)

	// Destination already has a question row from the sample fixture.
	err = p.GraphRepository().CopyStyles(ctx, dest.ID, models.Global, 1, source.ID, false)
	require.NoError(t, err)

	loaded, err := p.TemplateRepository().GetByID(ctx, dest.ID, models.Global)
	require.NoError(t, err)
	assert.Equal(t, "#fff3cd", loaded.StyleFor(models.NodeTypeQuestion).Background, "fill-gaps keeps existing rows")
	assert.Equal(t, "#src-end", loaded.StyleFor(models.NodeTypeEnd).Background)

	// Overwrite replaces the destination's question row with the source's.
	err = p.GraphRepository().CopyStyles(ctx, dest.ID, models.Global, 2, source.ID, true)
	require.NoError(t, err)

	loaded, err = p.TemplateRepository().GetByID(ctx, dest.ID, models.Global)
	require.NoError(t, err)
	assert.Equal(t, source.Styles[0].Background, loaded.StyleFor(models.NodeTypeQuestion).Background)
}
