package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_Global(t *testing.T) {
	assert.True(t, Global.IsGlobal())
	assert.Empty(t, Global.TenantID())
	assert.Equal(t, "global", Global.String())
}

func TestScope_ForTenant(t *testing.T) {
	scope := ForTenant("tenant-42")

	assert.False(t, scope.IsGlobal())
	assert.Equal(t, "tenant-42", scope.TenantID())
	assert.Equal(t, "tenant-42", scope.String())
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  Scope
	}{
		{name: "global keyword", value: "global", want: Global},
		{name: "empty string", value: "", want: Global},
		{name: "tenant id", value: "tenant-1", want: ForTenant("tenant-1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseScope(tt.value))
		})
	}
}

func TestScope_JSONRoundTrip(t *testing.T) {
	for _, scope := range []Scope{Global, ForTenant("tenant-7")} {
		data, err := json.Marshal(scope)
		require.NoError(t, err)

		var decoded Scope

		err = json.Unmarshal(data, &decoded)
		require.NoError(t, err)
		assert.Equal(t, scope, decoded)
	}
}
