package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"taskforge/backend/internal/config"
	"taskforge/backend/internal/logging"
	"taskforge/backend/internal/repository"
	"taskforge/backend/pkg/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	store := repository.NewPostgres(pool)
	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}

	company := &models.Company{ID: uuid.New().String(), Name: "Acme Robotics"}
	if err := store.CreateCompany(ctx, company); err != nil {
		log.Fatalf("Failed to create company: %v", err)
	}
	logger.Info("Seeded company %s (%s)", company.Name, company.ID)

	students := []struct {
		Name string
		Tier models.Tier
	}{
		{"Dana Novice", models.TierNovice},
		{"Sam Pro", models.TierPro},
		{"Riley Elite", models.TierElite},
	}
	for _, s := range students {
		student := &models.Student{ID: uuid.New().String(), Name: s.Name, Tier: s.Tier}
		if err := store.CreateStudent(ctx, student); err != nil {
			log.Fatalf("Failed to create student %s: %v", s.Name, err)
		}
		logger.Info("Seeded student %s (tier %s, id %s)", s.Name, s.Tier, student.ID)
	}

	units := []struct {
		Title      string
		Mode       models.AssignmentMode
		Complexity int
		MinTier    models.Tier
		Milestones []string
	}{
		{"Label 500 images", models.AssignmentModeAuto, 1, models.TierNovice,
			[]string{"Label first batch", "Label second batch"}},
		{"Build landing page", models.AssignmentModeManual, 3, models.TierPro,
			[]string{"Wireframe", "Implementation", "Responsive pass"}},
	}
	for _, u := range units {
		wu := &models.WorkUnit{
			ID:              uuid.New().String(),
			CompanyID:       company.ID,
			Title:           u.Title,
			PriceCents:      10000,
			DeadlineSeconds: int64((72 * time.Hour).Seconds()),
			MinTier:         u.MinTier,
			ComplexityScore: u.Complexity,
			RevisionLimit:   2,
			Mode:            u.Mode,
			Status:          models.WorkUnitStatusActive,
		}
		if err := store.CreateWorkUnit(ctx, wu); err != nil {
			log.Fatalf("Failed to create work unit %s: %v", u.Title, err)
		}
		for i, desc := range u.Milestones {
			if err := store.CreateMilestoneTemplate(ctx, &models.MilestoneTemplate{
				ID:          uuid.New().String(),
				WorkUnitID:  wu.ID,
				Description: desc,
				Position:    i + 1,
			}); err != nil {
				log.Fatalf("Failed to create milestone template: %v", err)
			}
		}

		now := time.Now()
		ref := "seed-charge"
		escrow := &models.Escrow{
			ID:         uuid.New().String(),
			WorkUnitID: wu.ID,
			GrossCents: wu.PriceCents,
			FeeCents:   wu.PriceCents * 15 / 100,
			NetCents:   wu.PriceCents * 85 / 100,
			Status:     models.EscrowStatusFunded,
			PaymentRef: &ref,
			FundedAt:   &now,
		}
		if err := store.CreateEscrow(ctx, escrow); err != nil {
			log.Fatalf("Failed to create escrow: %v", err)
		}
		logger.Info("Seeded work unit %q (mode %s, id %s)", u.Title, u.Mode, wu.ID)
	}

	logger.Info("Seeding complete")
}
