package services

import (
	"encoding/json"
	"testing"

	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransfer_ExportImportRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	source := authorScript(ctx, t, env, userRoot, models.Global, "Portable script")

	doc, err := env.transfer.Export(ctx, userRoot, models.Global, source.ID)
	require.NoError(t, err)
	assert.Equal(t, TransferFormatVersion, doc.FormatVersion)
	assert.Equal(t, "Portable script", doc.Name)
	assert.Len(t, doc.Nodes, 3)

	payload, err := json.Marshal(doc)
	require.NoError(t, err)

	imported, err := env.transfer.Import(ctx, userAda, models.ForTenant(tenantA), payload)
	require.NoError(t, err)

	assert.Equal(t, models.TemplateStatusDraft, imported.Status)
	assert.Empty(t, imported.SourceTemplateID, "imports carry no clone provenance")
	assert.Len(t, imported.Nodes, len(source.Nodes))
	assert.Len(t, imported.Options, len(source.Options))

	// Ids are re-minted and references remapped.
	for _, option := range imported.Options {
		assert.NotNil(t, imported.NodeByID(option.SourceNodeID))
	}
}

func TestTransfer_ImportRejectsInvalidDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	scope := models.ForTenant(tenantA)

	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: "not json at all"},
		{name: "missing name", payload: `{"format_version": 1, "nodes": []}`},
		{name: "name too short", payload: `{"format_version": 1, "name": "ab", "nodes": []}`},
		{name: "unknown node type", payload: `{"format_version": 1, "name": "Bad types", "nodes": [{"id": "n1", "type": "decision", "title": "Hm"}]}`},
		{name: "future format version", payload: `{"format_version": 99, "name": "From the future", "nodes": []}`},
		{
			name:    "option references unknown node",
			payload: `{"format_version": 1, "name": "Broken refs", "nodes": [{"id": "n1", "type": "question", "title": "Q"}], "options": [{"id": "o1", "source_node_id": "ghost", "label": "Yes"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.transfer.Import(ctx, userAda, scope, []byte(tt.payload))
			assert.ErrorIs(t, err, ErrInvalidImportDocument)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestTransfer_ImportDanglesOutOfDocumentTargets(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	payload := `{
		"format_version": 1,
		"name": "Partial export",
		"nodes": [{"id": "n1", "type": "question", "title": "Q"}],
		"options": [{"id": "o1", "source_node_id": "n1", "label": "Yes", "target_node_id": "removed"}]
	}`

	imported, err := env.transfer.Import(ctx, userAda, models.ForTenant(tenantA), []byte(payload))
	require.NoError(t, err)
	require.Len(t, imported.Options, 1)
	assert.True(t, imported.Options[0].Dangling())
}

func TestTransfer_ImportDropsUnresolvableLinks(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	target := authorScript(ctx, t, env, userRoot, models.Global, "Link target")

	payload := map[string]any{
		"format_version": 1,
		"name":           "Linked script",
		"nodes":          []any{map[string]any{"id": "n1", "type": "question", "title": "Q"}},
		"links": []any{
			map[string]any{"id": "l1", "source_node_id": "n1", "target_template_id": target.ID},
			map[string]any{"id": "l2", "source_node_id": "n1", "target_template_id": "nowhere"},
		},
	}

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	imported, err := env.transfer.Import(ctx, userAda, models.ForTenant(tenantA), raw)
	require.NoError(t, err)
	require.Len(t, imported.Links, 1, "unresolvable links are dropped")
	assert.Equal(t, target.ID, imported.Links[0].TargetTemplateID)
}

func TestTransfer_Forbidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	source := authorScript(ctx, t, env, userRoot, models.Global, "Guarded script")

	_, err := env.transfer.Export(ctx, userBob, models.Global, source.ID)
	assert.True(t, IsForbiddenError(err))

	_, err = env.transfer.Import(ctx, userBob, models.ForTenant(tenantA), []byte(`{}`))
	assert.True(t, IsForbiddenError(err))
}
