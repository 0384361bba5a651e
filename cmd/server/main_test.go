package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropguide/backend/internal/agronomy"
	"cropguide/backend/internal/auth"
	"cropguide/backend/internal/config"
	"cropguide/backend/internal/logging"
	"cropguide/backend/internal/mcp"
	"cropguide/backend/internal/model"
	"cropguide/backend/internal/repository"
	"cropguide/backend/internal/services"
)

func newMCPServer(t *testing.T, store repository.Repository) *mcp.Server {
	t.Helper()
	client := model.ClientFunc(func(context.Context, *model.Request) (*model.Response, error) {
		return &model.Response{Value: map[string]any{"answer": "Rotate with legumes."}}, nil
	})
	catalog, err := agronomy.NewCatalog(client)
	require.NoError(t, err)
	advisor, err := agronomy.NewAdvisor(catalog, 2, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(advisor.Close)
	return mcp.NewServer(services.NewAdvisorService(advisor, store, logging.NewNop()), "test")
}

func callTool(e *echo.Echo) *httptest.ResponseRecorder {
	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call",
		"params":{"name":"crop-question","arguments":{"query":"How do I restore soil nitrogen?"}}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMountMCP_RunsAsAuthenticatedFarmer(t *testing.T) {
	store := repository.NewMemoryStore()
	cfg := &config.Config{Environment: "DEV", DevModeBypass: true}
	authz, err := auth.New(context.Background(), cfg, store, logging.NewNop())
	require.NoError(t, err)

	e := echo.New()
	mountMCP(e, newMCPServer(t, store), authz.RequireAuth)

	rec := callTool(e)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Rotate with legumes.")

	farmer, err := store.GetFarmerByEmail(context.Background(), auth.DevEmail)
	require.NoError(t, err)
	entries, err := store.ListHistory(context.Background(), farmer.ID, repository.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, agronomy.FlowCropQuestion, entries[0].Flow)
}

func TestMountMCP_RejectedCallerNeverReachesTools(t *testing.T) {
	generated := false
	client := model.ClientFunc(func(context.Context, *model.Request) (*model.Response, error) {
		generated = true
		return &model.Response{Value: map[string]any{"answer": "unexpected"}}, nil
	})
	catalog, err := agronomy.NewCatalog(client)
	require.NoError(t, err)
	advisor, err := agronomy.NewAdvisor(catalog, 1, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(advisor.Close)
	server := mcp.NewServer(services.NewAdvisorService(advisor, repository.NewMemoryStore(), logging.NewNop()), "test")

	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})
	}
	e := echo.New()
	mountMCP(e, server, deny)

	rec := callTool(e)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, generated)
}
