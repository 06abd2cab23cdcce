package main

import (
	"context"
	"fmt"
	"log"

	"go.uber.org/fx"

	"licensegate/pkg/config"
	"licensegate/pkg/db"
	"licensegate/pkg/gen"
	"licensegate/pkg/logger"
	"licensegate/services/license"
)

// Seeds a handful of demo licenses for local development. Keys are printed to
// stdout so they can be pasted straight into X-License-Key.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		license.Module,
		fx.Invoke(seed),
		fx.NopLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
	if err := app.Stop(ctx); err != nil {
		log.Fatalf("shutdown failed: %v", err)
	}
}

func seed(svc *license.Service) error {
	requests := []license.CreateLicenseRequest{
		{
			Name:  "Trial Tester",
			Email: "trial@example.com",
			Type:  license.TypeTrial,
			Hours: 1,
		},
		{
			Name:         "Standard Customer",
			Email:        "standard@example.com",
			Company:      "Example Co",
			Type:         license.TypeStandard,
			Hours:        40,
			DurationDays: 365,
		},
		{
			Name:         "Enterprise Customer",
			Email:        "enterprise@example.com",
			Company:      "Big Example Inc",
			Type:         license.TypeEnterprise,
			Hours:        500,
			DurationDays: 730,
		},
	}

	for _, req := range requests {
		lic, err := svc.Create(context.Background(), req)
		if err != nil {
			return fmt.Errorf("seed %s: %w", req.Email, err)
		}
		fmt.Printf("%-12s %s (%.0fh, expires %s)\n", lic.Type, lic.Key, lic.PurchasedHours, lic.ExpiresAt.Format("2006-01-02"))
	}

	return nil
}
