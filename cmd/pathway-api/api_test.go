package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clinicdesk/pathway/pkg/identity"
	"github.com/clinicdesk/pathway/pkg/persistence/memory"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp() *fiber.App {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := identity.NewStaticResolver(
		identity.Grant{UserID: "root", Superuser: true},
	)

	api := NewAPI(logger, memory.NewPersistence(), resolver, nil, nil)

	return api.App()
}

func TestAPI_RootEndpoint(t *testing.T) {
	app := setupTestApp()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Pathway API", string(body))
}

func TestAPI_Liveness(t *testing.T) {
	app := setupTestApp()

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_TemplatesRequireIdentity(t *testing.T) {
	app := setupTestApp()

	req := httptest.NewRequest(http.MethodGet, "/templates", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
