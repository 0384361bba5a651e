// Package api contains the HTTP handlers for the crop guidance service
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"cropguide/backend/internal/agronomy"
	"cropguide/backend/internal/auth"
	"cropguide/backend/internal/repository"
	"cropguide/backend/internal/services"
	"cropguide/backend/pkg/models"
)

// DefaultMaxUpload bounds a single uploaded file.
const DefaultMaxUpload = 10 << 20

// Server holds the dependencies for the API server.
type Server struct {
	Service   *services.AdvisorService
	Logger    Logger
	MaxUpload int64
}

// NewServer creates a new Server.
func NewServer(svc *services.AdvisorService, logger Logger) *Server {
	return &Server{Service: svc, Logger: logger, MaxUpload: DefaultMaxUpload}
}

// RegisterHandlers mounts the API on g. Callers apply authentication to g.
func RegisterHandlers(g *echo.Group, s *Server) {
	g.GET("/flows", s.ListFlows)
	g.POST("/flows/:name", s.RunFlow)
	g.POST("/farm-analysis", s.AnalyzeFarm)
	g.GET("/history", s.ListHistory)
	g.DELETE("/history", s.ClearHistory)
	g.GET("/profile", s.GetProfile)
	g.PUT("/profile", s.UpdateProfile)
}

func farmerID(c echo.Context) (string, error) {
	id, ok := auth.FarmerIDFromContext(c.Request().Context())
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Farmer not found in context")
	}
	return id, nil
}

// AnalyzeFarm runs the growth analysis for every crop of a farm
// (POST /api/v1/farm-analysis)
func (s *Server) AnalyzeFarm(c echo.Context) error {
	ctx := c.Request().Context()

	var details agronomy.FarmDetails
	if err := decodeJSON(c, &details); err != nil {
		return err
	}

	id, _ := auth.FarmerIDFromContext(ctx)
	report, err := s.Service.AnalyzeFarm(ctx, id, details)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// HistoryResponse lists history entries.
type HistoryResponse struct {
	Entries []*models.HistoryEntry `json:"entries"`
}

// ListHistory returns the caller's history, newest first
// (GET /api/v1/history?flow=&limit=)
func (s *Server) ListHistory(c echo.Context) error {
	id, err := farmerID(c)
	if err != nil {
		return err
	}

	filter := repository.HistoryFilter{Flow: c.QueryParam("flow")}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		filter.Limit = limit
	}

	entries, err := s.Service.History(c.Request().Context(), id, filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, HistoryResponse{Entries: entries})
}

// ClearHistory deletes the caller's history
// (DELETE /api/v1/history)
func (s *Server) ClearHistory(c echo.Context) error {
	id, err := farmerID(c)
	if err != nil {
		return err
	}
	removed, err := s.Service.ClearHistory(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int64{"deleted": removed})
}

// GetProfile returns the caller's profile
// (GET /api/v1/profile)
func (s *Server) GetProfile(c echo.Context) error {
	id, err := farmerID(c)
	if err != nil {
		return err
	}
	farmer, err := s.Service.Profile(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, farmer)
}

// ProfileUpdate is the body of PUT /api/v1/profile.
type ProfileUpdate struct {
	Name string `json:"name"`
}

// UpdateProfile changes the caller's display name
// (PUT /api/v1/profile)
func (s *Server) UpdateProfile(c echo.Context) error {
	id, err := farmerID(c)
	if err != nil {
		return err
	}
	var update ProfileUpdate
	if err := decodeJSON(c, &update); err != nil {
		return err
	}
	farmer, err := s.Service.UpdateProfile(c.Request().Context(), id, update.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, farmer)
}
