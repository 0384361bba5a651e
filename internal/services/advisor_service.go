// Package services runs flows on behalf of farmers and keeps their history.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"cropguide/backend/internal/agronomy"
	"cropguide/backend/internal/flow"
	"cropguide/backend/internal/media"
	"cropguide/backend/internal/repository"
	"cropguide/backend/pkg/models"
)

// MaxNameLength bounds a farmer's display name.
const MaxNameLength = 100

// ErrInvalidName is returned when a profile name is empty or too long.
var ErrInvalidName = errors.New("name must be between 1 and 100 characters")

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// AdvisorService is the application facade over the agronomy flows.
type AdvisorService struct {
	advisor *agronomy.Advisor
	repo    repository.Repository
	logger  Logger
}

// NewAdvisorService creates a new AdvisorService.
func NewAdvisorService(advisor *agronomy.Advisor, repo repository.Repository, logger Logger) *AdvisorService {
	return &AdvisorService{
		advisor: advisor,
		repo:    repo,
		logger:  logger,
	}
}

// Flows lists the available flows in catalog order.
func (s *AdvisorService) Flows() []*flow.Flow {
	return s.advisor.Catalog().Flows()
}

// Flow returns the named flow.
func (s *AdvisorService) Flow(name string) (*flow.Flow, error) {
	return s.advisor.Catalog().Get(name)
}

// RunFlow runs the named flow. Successful runs are recorded in the farmer's
// history when farmerID is set; a failure to record is logged and does not
// fail the call. History keeps the validated request, so keys the flow does
// not declare are dropped.
func (s *AdvisorService) RunFlow(ctx context.Context, farmerID, name string, input map[string]any) (map[string]any, error) {
	f, err := s.advisor.Catalog().Get(name)
	if err != nil {
		return nil, err
	}
	result, err := f.Run(ctx, input)
	if err != nil {
		return nil, err
	}
	if farmerID == "" {
		return result, nil
	}
	request, err := f.Definition().Input.Validate(input)
	if err != nil {
		s.logger.Error("failed to normalize request for history", "flow", name, "error", err)
		return result, nil
	}
	s.record(ctx, farmerID, name, request, result)
	return result, nil
}

// AnalyzeFarm runs a farm analysis and records it like a flow run.
func (s *AdvisorService) AnalyzeFarm(ctx context.Context, farmerID string, details agronomy.FarmDetails) (*agronomy.FarmReport, error) {
	report, err := s.advisor.AnalyzeFarm(ctx, details)
	if err != nil {
		return nil, err
	}
	request, rerr := toRecord(details)
	result, perr := toRecord(report)
	if rerr != nil || perr != nil {
		s.logger.Error("failed to encode farm analysis for history", "error", errors.Join(rerr, perr))
		return report, nil
	}
	s.record(ctx, farmerID, agronomy.FarmAnalysisName, request, result)
	return report, nil
}

func (s *AdvisorService) record(ctx context.Context, farmerID, name string, request, result map[string]any) {
	if farmerID == "" {
		return
	}
	entry := &models.HistoryEntry{
		FarmerID: farmerID,
		Flow:     name,
		Request:  elideMedia(request).(map[string]any),
		Result:   result,
	}
	// Saved even when the caller has already gone away.
	if err := s.repo.SaveHistory(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("failed to record history", "farmer_id", farmerID, "flow", name, "error", err)
		return
	}
	s.logger.Debug("history recorded", "farmer_id", farmerID, "flow", name, "entry_id", entry.ID)
}

// History lists a farmer's past runs, newest first.
func (s *AdvisorService) History(ctx context.Context, farmerID string, filter repository.HistoryFilter) ([]*models.HistoryEntry, error) {
	return s.repo.ListHistory(ctx, farmerID, filter)
}

// ClearHistory deletes a farmer's history.
func (s *AdvisorService) ClearHistory(ctx context.Context, farmerID string) (int64, error) {
	removed, err := s.repo.DeleteHistory(ctx, farmerID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("history cleared", "farmer_id", farmerID, "entries", removed)
	return removed, nil
}

// Profile returns the farmer's profile.
func (s *AdvisorService) Profile(ctx context.Context, farmerID string) (*models.Farmer, error) {
	return s.repo.GetFarmer(ctx, farmerID)
}

// UpdateProfile sets the farmer's display name.
func (s *AdvisorService) UpdateProfile(ctx context.Context, farmerID, name string) (*models.Farmer, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return nil, ErrInvalidName
	}
	return s.repo.UpdateFarmerName(ctx, farmerID, name)
}

// Ping checks the repository.
func (s *AdvisorService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func toRecord(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var record map[string]any
	if err := json.Unmarshal(b, &record); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return record, nil
}

// elideMedia replaces inline media with a short description so history rows
// stay small.
func elideMedia(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = elideMedia(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = elideMedia(item)
		}
		return out
	case string:
		if !strings.HasPrefix(v, "data:") {
			return v
		}
		in, err := media.Parse(v)
		if err != nil {
			return v
		}
		return fmt.Sprintf("[%s, %d bytes]", in.MIMEType, len(in.Data))
	}
	return value
}
