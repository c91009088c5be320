package identity_test

import (
	"context"
	"testing"

	"github.com/clinicdesk/pathway/pkg/identity"
	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrant_CanManage(t *testing.T) {
	tests := []struct {
		name  string
		grant identity.Grant
		scope models.Scope
		want  bool
	}{
		{
			name:  "superuser manages global",
			grant: identity.Grant{UserID: "root", Superuser: true},
			scope: models.Global,
			want:  true,
		},
		{
			name:  "superuser manages any tenant",
			grant: identity.Grant{UserID: "root", Superuser: true},
			scope: models.ForTenant("clinic-a"),
			want:  true,
		},
		{
			name:  "tenant admin manages own tenant",
			grant: identity.Grant{UserID: "ada", AdminTenants: []string{"clinic-a"}},
			scope: models.ForTenant("clinic-a"),
			want:  true,
		},
		{
			name:  "tenant admin cannot manage global",
			grant: identity.Grant{UserID: "ada", AdminTenants: []string{"clinic-a"}},
			scope: models.Global,
			want:  false,
		},
		{
			name:  "tenant admin cannot manage other tenant",
			grant: identity.Grant{UserID: "ada", AdminTenants: []string{"clinic-a"}},
			scope: models.ForTenant("clinic-b"),
			want:  false,
		},
		{
			name:  "plain member manages nothing",
			grant: identity.Grant{UserID: "bob", TenantID: "clinic-a"},
			scope: models.ForTenant("clinic-a"),
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.grant.CanManage(tt.scope))
		})
	}
}

func TestGrant_CanRun(t *testing.T) {
	member := identity.Grant{UserID: "bob", TenantID: "clinic-a"}
	assert.True(t, member.CanRun("clinic-a"))
	assert.False(t, member.CanRun("clinic-b"))

	admin := identity.Grant{UserID: "ada", AdminTenants: []string{"clinic-b"}}
	assert.True(t, admin.CanRun("clinic-b"))

	root := identity.Grant{UserID: "root", Superuser: true}
	assert.True(t, root.CanRun("clinic-a"))
}

func TestStaticResolver(t *testing.T) {
	ctx := context.Background()

	resolver := identity.NewStaticResolver(identity.Grant{UserID: "ada", TenantID: "clinic-a"})

	grant, err := resolver.Resolve(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, "clinic-a", grant.TenantID)

	_, err = resolver.Resolve(ctx, "stranger")
	assert.ErrorIs(t, err, identity.ErrUnknownUser)

	resolver.Put(identity.Grant{UserID: "stranger", TenantID: "clinic-b"})

	grant, err = resolver.Resolve(ctx, "stranger")
	require.NoError(t, err)
	assert.Equal(t, "clinic-b", grant.TenantID)
}
