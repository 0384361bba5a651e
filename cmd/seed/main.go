package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"cropguide/backend/internal/agronomy"
	"cropguide/backend/internal/auth"
	"cropguide/backend/internal/config"
	"cropguide/backend/internal/logging"
	"cropguide/backend/internal/repository"
	"cropguide/backend/pkg/models"
)

func main() {
	var envFile string

	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Create the schema and a development farmer with sample history",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return seed(cmd.Context(), envFile)
		},
	}
	cmd.Flags().StringVar(&envFile, "env", "", "Path to .env file")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func seed(ctx context.Context, envFile string) error {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	defer logger.Sync()

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	// 1. Ensure the development farmer exists
	farmer, err := store.GetFarmerByEmail(ctx, auth.DevEmail)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		logger.Info("Creating development farmer", "email", auth.DevEmail)
		farmer = &models.Farmer{Email: auth.DevEmail, Name: "Local Farmer"}
		if err := store.CreateFarmer(ctx, farmer); err != nil {
			return fmt.Errorf("failed to create farmer: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to look up farmer: %w", err)
	default:
		logger.Info("Found existing farmer", "id", farmer.ID)
	}

	// 2. Skip history seeding when the farmer already has entries
	existing, err := store.ListHistory(ctx, farmer.ID, repository.HistoryFilter{Limit: 1})
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}
	if len(existing) > 0 {
		logger.Info("History already present, skipping", "farmer_id", farmer.ID)
		return nil
	}

	// 3. Seed sample history
	samples := []models.HistoryEntry{
		{
			Flow:    agronomy.FlowCropQuestion,
			Request: map[string]any{"query": "When should I sow wheat in North India?"},
			Result: map[string]any{
				"answer": "Sow wheat from late October to mid November, once day temperatures settle around 20 to 25 C.",
			},
		},
		{
			Flow:    agronomy.FlowGrowthStage,
			Request: map[string]any{"photoDataUri": "[image/jpeg, 0 bytes]"},
			Result: map[string]any{
				"growthStage": "vegetative",
				"analysis":    "Leaves are uniformly green with no visible stress.",
			},
		},
	}

	for i := range samples {
		entry := samples[i]
		entry.FarmerID = farmer.ID
		if err := store.SaveHistory(ctx, &entry); err != nil {
			logger.Error("Failed to seed history entry", "flow", entry.Flow, "error", err)
			continue
		}
		logger.Info("Seeded history entry", "flow", entry.Flow, "id", entry.ID)
	}
	logger.Info("Seeding complete!")
	return nil
}
