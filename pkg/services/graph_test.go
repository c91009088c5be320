package services

import (
	"testing"

	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/clinicdesk/pathway/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_CreateNode(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	scope := models.ForTenant(tenantA)

	template, err := env.templates.Create(ctx, userAda, scope, CreateTemplateRequest{Name: "Node tests"})
	require.NoError(t, err)

	first, err := env.graph.CreateNode(ctx, userAda, scope, template.ID, 1, CreateNodeRequest{
		Type: models.NodeTypeQuestion, Title: "  Urgent?  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Urgent?", first.Title)
	assert.Equal(t, 0, first.SortOrder)
	assert.Equal(t, diagramBaseX, first.PositionX)

	second, err := env.graph.CreateNode(ctx, userAda, scope, template.ID, 2, CreateNodeRequest{
		Type: models.NodeTypeEnd, Title: "Done",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, second.SortOrder)
	assert.Equal(t, diagramBaseX+diagramStagger, second.PositionX, "nodes stagger on the diagram")

	_, err = env.graph.CreateNode(ctx, userAda, scope, template.ID, 3, CreateNodeRequest{
		Type: "decision", Title: "Bad type",
	})
	assert.ErrorIs(t, err, ErrInvalidNodeType)

	_, err = env.graph.CreateNode(ctx, userAda, scope, template.ID, 3, CreateNodeRequest{
		Type: models.NodeTypePanel, Title: "   ",
	})
	assert.ErrorIs(t, err, ErrTitleRequired)
}

func TestGraph_EditableGuard(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	scope := models.ForTenant(tenantA)

	template := authorScript(ctx, t, env, userAda, scope, "Frozen script")

	submitted, err := env.approval.SubmitForReview(ctx, userAda, scope, template.ID, template.Version)
	require.NoError(t, err)

	_, err = env.graph.CreateNode(ctx, userAda, scope, template.ID, submitted.Version, CreateNodeRequest{
		Type: models.NodeTypePanel, Title: "Too late",
	})
	assert.ErrorIs(t, err, ErrTemplateNotEditable)
	assert.True(t, IsInvalidStateError(err))
}

func TestGraph_OptionValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	scope := models.ForTenant(tenantA)

	template := authorScript(ctx, t, env, userAda, scope, "Option tests")
	other := authorScript(ctx, t, env, userAda, scope, "Other template")

	var question, instruction *models.Node

	for _, node := range template.Nodes {
		switch node.Type {
		case models.NodeTypeQuestion:
			question = node
		case models.NodeTypeInstruction:
			instruction = node
		}
	}

	_, err := env.graph.CreateOption(ctx, userAda, scope, template.ID, template.Version, OptionRequest{
		SourceNodeID: question.ID, Label: "   ",
	})
	assert.ErrorIs(t, err, ErrLabelRequired)

	// Only question nodes may grow options.
	_, err = env.graph.CreateOption(ctx, userAda, scope, template.ID, template.Version, OptionRequest{
		SourceNodeID: instruction.ID, Label: "Nope",
	})
	assert.ErrorIs(t, err, ErrBranchingUnsupported)

	// Targets must live in the same template.
	foreign := other.Nodes[0].ID
	_, err = env.graph.CreateOption(ctx, userAda, scope, template.ID, template.Version, OptionRequest{
		SourceNodeID: question.ID, Label: "Across", TargetNodeID: &foreign,
	})
	assert.ErrorIs(t, err, ErrTargetOutsideTemplate)

	// A deliberately dangling option is legal authored data.
	option, err := env.graph.CreateOption(ctx, userAda, scope, template.ID, template.Version, OptionRequest{
		SourceNodeID: question.ID, Label: "Not wired yet",
	})
	require.NoError(t, err)
	assert.True(t, option.Dangling())
}

func TestGraph_DeleteNodeCascade(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	scope := models.ForTenant(tenantA)

	template := authorScript(ctx, t, env, userAda, scope, "Cascade")

	var instruction *models.Node

	for _, node := range template.Nodes {
		if node.Type == models.NodeTypeInstruction {
			instruction = node
		}
	}

	err := env.graph.DeleteNode(ctx, userAda, scope, template.ID, template.Version, instruction.ID)
	require.NoError(t, err)

	reloaded, err := env.templates.Get(ctx, userAda, scope, template.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.NodeByID(instruction.ID))

	// The "Yes" option survives with its label, now dangling.
	var yes *models.AnswerOption

	for _, option := range reloaded.Options {
		if option.Label == "Yes" {
			yes = option
		}
	}

	require.NotNil(t, yes)
	assert.True(t, yes.Dangling())
}

func TestGraph_CreateLink(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	scope := models.ForTenant(tenantA)

	template := authorScript(ctx, t, env, userAda, scope, "Link source")
	target := authorScript(ctx, t, env, userAda, scope, "Link target")
	global := authorScript(ctx, t, env, userRoot, models.Global, "Shared escalation")

	source := template.Nodes[0]

	// Linking a template to itself is meaningless.
	_, err := env.graph.CreateLink(ctx, userAda, scope, template.ID, template.Version, CreateLinkRequest{
		SourceNodeID: source.ID, TargetTemplateID: template.ID,
	})
	assert.ErrorIs(t, err, ErrSelfLink)

	link, err := env.graph.CreateLink(ctx, userAda, scope, template.ID, template.Version, CreateLinkRequest{
		SourceNodeID: source.ID, TargetTemplateID: target.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, target.ID, link.TargetTemplateID)

	// Tenant templates may link to global ones; the runtime will resolve
	// them through the same fallback.
	_, err = env.graph.CreateLink(ctx, userAda, scope, template.ID, template.Version+1, CreateLinkRequest{
		SourceNodeID: source.ID, TargetTemplateID: global.ID,
	})
	require.NoError(t, err)

	// Inactive targets are rejected at author time.
	inactive := false
	_, err = env.templates.UpdateMeta(ctx, userAda, scope, target.ID, target.Version, UpdateTemplateRequest{Active: &inactive})
	require.NoError(t, err)

	_, err = env.graph.CreateLink(ctx, userAda, scope, template.ID, template.Version+2, CreateLinkRequest{
		SourceNodeID: source.ID, TargetTemplateID: target.ID,
	})
	assert.ErrorIs(t, err, ErrTemplateNotRunnable)
}

func TestGraph_RepositionNodes(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	scope := models.ForTenant(tenantA)

	template := authorScript(ctx, t, env, userAda, scope, "Layout")
	other := authorScript(ctx, t, env, userAda, scope, "Other layout")

	err := env.graph.RepositionNodes(ctx, userAda, scope, template.ID, template.Version, nil)
	assert.ErrorIs(t, err, ErrEmptyPositions)

	// One foreign id fails the whole batch.
	err = env.graph.RepositionNodes(ctx, userAda, scope, template.ID, template.Version, []persistence.NodePosition{
		{NodeID: template.Nodes[0].ID, X: 10, Y: 10},
		{NodeID: other.Nodes[0].ID, X: 20, Y: 20},
	})
	assert.True(t, IsConflictError(err))

	reloaded, err := env.templates.Get(ctx, userAda, scope, template.ID)
	require.NoError(t, err)
	assert.Equal(t, template.Version, reloaded.Version, "failed batch persists nothing")

	err = env.graph.RepositionNodes(ctx, userAda, scope, template.ID, template.Version, []persistence.NodePosition{
		{NodeID: template.Nodes[0].ID, X: 10, Y: 20},
	})
	require.NoError(t, err)

	reloaded, err = env.templates.Get(ctx, userAda, scope, template.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, reloaded.NodeByID(template.Nodes[0].ID).PositionX)
}

func TestGraph_Styles(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	scope := models.ForTenant(tenantA)

	template := authorScript(ctx, t, env, userAda, scope, "Styled")
	other := authorScript(ctx, t, env, userAda, scope, "Unstyled")

	err := env.graph.UpsertStyle(ctx, userAda, scope, template.ID, template.Version, StyleRequest{
		NodeType: models.NodeTypeQuestion, Background: "#fff3cd", Text: "#1b1b1b",
	})
	require.NoError(t, err)

	err = env.graph.CopyStyles(ctx, userAda, scope, other.ID, other.Version, template.ID, false)
	require.NoError(t, err)

	reloaded, err := env.templates.Get(ctx, userAda, scope, other.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.StyleFor(models.NodeTypeQuestion))
	assert.Equal(t, "#fff3cd", reloaded.StyleFor(models.NodeTypeQuestion).Background)

	err = env.graph.DeleteStyle(ctx, userAda, scope, other.ID, reloaded.Version, models.NodeTypeQuestion)
	require.NoError(t, err)

	reloaded, err = env.templates.Get(ctx, userAda, scope, other.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.StyleFor(models.NodeTypeQuestion))
}
