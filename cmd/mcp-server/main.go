package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/db"
	"github.com/marketgrid/adengine/internal/logic"
	"github.com/marketgrid/adengine/internal/models"
)

// Operator tooling over the ad engine: campaign statistics and the live
// banner rotation, exposed as MCP tools for support and admin agents.

type StatisticsInput struct {
	CampaignID int `json:"campaign_id"`
}

type StatisticsOutput struct {
	Campaign *models.Campaign     `json:"campaign,omitempty"`
	Stats    *models.CampaignStats `json:"stats,omitempty"`
}

type BannerSlotsInput struct {
	Limit int `json:"limit,omitempty"`
}

type BannerSlotsOutput struct {
	Slots []models.BannerSlot `json:"slots"`
}

type engineServer struct {
	pg        *db.Postgres
	scheduler *logic.Scheduler
	logger    *zap.Logger
}

// GetCampaignStatistics returns the campaign record with its aggregated
// reach and click statistics.
func (s *engineServer) GetCampaignStatistics(ctx context.Context, req *mcp.CallToolRequest, input StatisticsInput) (*mcp.CallToolResult, StatisticsOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	campaign, err := s.pg.GetCampaign(ctx, input.CampaignID)
	if err != nil {
		return nil, StatisticsOutput{}, fmt.Errorf("load campaign: %w", err)
	}
	if campaign == nil {
		return nil, StatisticsOutput{}, fmt.Errorf("campaign %d not found", input.CampaignID)
	}
	stats, err := s.pg.CampaignStatistics(ctx, input.CampaignID, time.Now())
	if err != nil {
		return nil, StatisticsOutput{}, fmt.Errorf("load statistics: %w", err)
	}
	s.logger.Info("Served campaign statistics", zap.Int("campaign_id", input.CampaignID))
	return nil, StatisticsOutput{Campaign: campaign, Stats: stats}, nil
}

// ListBannerSlots returns the rotation schedule the storefront would receive
// right now.
func (s *engineServer) ListBannerSlots(ctx context.Context, req *mcp.CallToolRequest, input BannerSlotsInput) (*mcp.CallToolResult, BannerSlotsOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	limit := input.Limit
	if limit < 1 {
		limit = 10
	}
	slots, err := s.scheduler.Schedule(ctx, limit)
	if err != nil {
		return nil, BannerSlotsOutput{}, fmt.Errorf("schedule banners: %w", err)
	}
	if slots == nil {
		slots = []models.BannerSlot{}
	}
	s.logger.Info("Served banner rotation", zap.Int("slots", len(slots)))
	return nil, BannerSlotsOutput{Slots: slots}, nil
}

func main() {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("adengine-mcp").With(zap.String("service", "adengine-mcp"))

	logger.Info("Starting ad engine MCP server")

	postgresURL := os.Getenv("POSTGRES_DSN")
	if postgresURL == "" {
		logger.Fatal("POSTGRES_DSN environment variable is required")
	}

	pg, err := db.InitPostgres(postgresURL, 10, 5, 30*time.Minute, time.Minute)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pg.Close()
	logger.Info("Connected to PostgreSQL")

	srv := &engineServer{
		pg:        pg,
		scheduler: logic.NewScheduler(logic.NewFilter(pg)),
		logger:    logger,
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "adengine",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_campaign_statistics",
		Description: "Fetch a campaign with its aggregated reach and click statistics",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"campaign_id": map[string]interface{}{
					"type":        "integer",
					"description": "Campaign ID to look up",
				},
			},
			"required": []string{"campaign_id"},
		},
	}, srv.GetCampaignStatistics)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_banner_slots",
		Description: "List the banner rotation schedule the storefront would receive right now",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of slots to return (optional, defaults to 10)",
				},
			},
		},
	}, srv.ListBannerSlots)

	logger.Info("MCP server running via stdio")

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}
