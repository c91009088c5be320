package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/clinicdesk/pathway/pkg/identity"
	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/clinicdesk/pathway/pkg/persistence/memory"
	"github.com/stretchr/testify/require"
)

// Fixed users shared by the service tests: a superuser, an admin of
// clinic-a, a plain receptionist of clinic-a and an admin of clinic-b.
const (
	userRoot  = "root"
	userAda   = "ada"
	userBob   = "bob"
	userCarol = "carol"

	tenantA = "clinic-a"
	tenantB = "clinic-b"
)

type testEnv struct {
	persistence *memory.Persistence
	templates   *Template
	graph       *Graph
	approval    *Approval
	instances   *Instance
	transfer    *Transfer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	resolver := identity.NewStaticResolver(
		identity.Grant{UserID: userRoot, Superuser: true},
		identity.Grant{UserID: userAda, TenantID: tenantA, AdminTenants: []string{tenantA}},
		identity.Grant{UserID: userBob, TenantID: tenantA},
		identity.Grant{UserID: userCarol, TenantID: tenantB, AdminTenants: []string{tenantB}},
	)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := memory.NewPersistence()

	return &testEnv{
		persistence: p,
		templates:   NewTemplate(p, resolver, nil, logger),
		graph:       NewGraph(p, resolver, nil, logger),
		approval:    NewApproval(p, resolver, nil, logger),
		instances:   NewInstance(p, resolver, nil, nil, logger),
		transfer:    NewTransfer(p, resolver, logger),
	}
}

// authorScript builds a small reception script in the scope:
//
//	question "Urgent?" --Yes--> instruction "Call the doctor" --> end "Done"
//	                   --No---> end "Done"
//
// and returns the template reloaded with current ids and version.
func authorScript(ctx context.Context, t *testing.T, env *testEnv, userID string, scope models.Scope, name string) *models.Template {
	t.Helper()

	template, err := env.templates.Create(ctx, userID, scope, CreateTemplateRequest{Name: name})
	require.NoError(t, err)

	question, err := env.graph.CreateNode(ctx, userID, scope, template.ID, template.Version, CreateNodeRequest{
		Type: models.NodeTypeQuestion, Title: "Urgent?",
	})
	require.NoError(t, err)

	instruction, err := env.graph.CreateNode(ctx, userID, scope, template.ID, template.Version+1, CreateNodeRequest{
		Type: models.NodeTypeInstruction, Title: "Call the doctor",
	})
	require.NoError(t, err)

	end, err := env.graph.CreateNode(ctx, userID, scope, template.ID, template.Version+2, CreateNodeRequest{
		Type: models.NodeTypeEnd, Title: "Done",
	})
	require.NoError(t, err)

	_, err = env.graph.CreateOption(ctx, userID, scope, template.ID, template.Version+3, OptionRequest{
		SourceNodeID: question.ID, Label: "Yes", TargetNodeID: &instruction.ID,
	})
	require.NoError(t, err)

	_, err = env.graph.CreateOption(ctx, userID, scope, template.ID, template.Version+4, OptionRequest{
		SourceNodeID: question.ID, Label: "No", TargetNodeID: &end.ID,
	})
	require.NoError(t, err)

	reloaded, err := env.templates.Get(ctx, userID, scope, template.ID)
	require.NoError(t, err)

	return reloaded
}

// approveScript walks a template through the review lifecycle to approved.
func approveScript(ctx context.Context, t *testing.T, env *testEnv, userID string, scope models.Scope, template *models.Template) *models.Template {
	t.Helper()

	submitted, err := env.approval.SubmitForReview(ctx, userID, scope, template.ID, template.Version)
	require.NoError(t, err)

	approved, err := env.approval.Approve(ctx, userID, scope, template.ID, submitted.Version)
	require.NoError(t, err)

	return approved
}
