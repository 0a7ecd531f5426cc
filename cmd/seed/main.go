package main

import (
	"context"
	"fmt"
	"log"

	"approval-flow/backend/internal/config"
	"approval-flow/backend/internal/logging"
	"approval-flow/backend/internal/repository"
	"approval-flow/backend/internal/services"
	"approval-flow/backend/pkg/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	// Load config
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to DB
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	if err := repository.Migrate(ctx, pool); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	store := repository.NewPostgresStore(pool)
	templates := services.NewTemplateService(store)

	// 1. Ensure sectors exist
	sectorNames := []string{"Management", "Finance", "Operations"}
	sectorIDs := make(map[string]string)

	existing, err := store.ListSectors(ctx)
	if err != nil {
		log.Fatalf("Failed to list sectors: %v", err)
	}
	for _, s := range existing {
		sectorIDs[s.Name] = s.ID
	}

	for _, name := range sectorNames {
		if _, ok := sectorIDs[name]; ok {
			logger.Info("Skipping existing sector: %s", name)
			continue
		}
		sector := &models.Sector{
			ID:   uuid.New().String(),
			Name: name,
		}
		if err := store.CreateSector(ctx, sector); err != nil {
			log.Fatalf("Failed to create sector %s: %v", name, err)
		}
		sectorIDs[name] = sector.ID
		logger.Info("Seeded sector: %s", name)
	}

	// 2. Ensure demo users exist
	users := []struct {
		Username string
		Email    string
		Sector   string
		Profile  models.ApproverProfile
	}{
		{"admin", "admin@localhost", "Management", models.ProfileAdministrator},
		{"manager", "manager@localhost", "Management", models.ProfileStandard},
		{"finance", "finance@localhost", "Finance", models.ProfileStandard},
	}

	var adminID *string
	for _, u := range users {
		found, err := store.GetUserByEmail(ctx, u.Email)
		if err == nil {
			logger.Info("Skipping existing user: %s", u.Email)
			if u.Username == "admin" {
				adminID = &found.ID
			}
			continue
		}

		sectorID := sectorIDs[u.Sector]
		user := &models.User{
			ID:       uuid.New().String(),
			Username: u.Username,
			Email:    u.Email,
			SectorID: &sectorID,
			Profile:  u.Profile,
		}
		if err := store.CreateUser(ctx, user); err != nil {
			log.Fatalf("Failed to create user %s: %v", u.Email, err)
		}
		if u.Username == "admin" {
			adminID = &user.ID
		}
		logger.Info("Seeded user: %s", u.Email)
	}

	// 3. Check for existing templates to prevent duplicates
	existingTemplates, err := store.ListTemplates(ctx)
	if err != nil {
		log.Fatalf("Failed to list existing templates: %v", err)
	}
	existingMap := make(map[string]bool)
	for _, t := range existingTemplates {
		existingMap[t.Name] = true
	}

	// 4. Create seed templates
	mgmtID := sectorIDs["Management"]
	finID := sectorIDs["Finance"]

	seeds := []struct {
		Name        string
		Description string
		Stages      []models.StageInput
	}{
		{
			Name:        "Purchase Approval",
			Description: "Two-step purchase order sign-off.",
			Stages: []models.StageInput{
				{Name: "Manager Review", SectorID: &mgmtID, ApproverProfile: models.ProfileStandard},
				{Name: "Finance Review", SectorID: &finID, ApproverProfile: models.ProfileAdministrator},
			},
		},
		{
			Name:        "Onboarding",
			Description: "Single-step onboarding acknowledgement.",
			Stages: []models.StageInput{
				{Name: "Operations Check", ApproverProfile: models.ProfileStandard},
			},
		},
	}

	for _, s := range seeds {
		if existingMap[s.Name] {
			logger.Info("Skipping existing template: %s", s.Name)
			continue
		}
		tmpl, err := templates.Create(ctx, s.Name, s.Description, adminID, s.Stages)
		if err != nil {
			log.Printf("Failed to create template %s: %v", s.Name, err)
		} else {
			logger.Info("Seeded template: %s id=%s", s.Name, tmpl.ID)
		}
	}

	logger.Info("Seeding complete!")
}
