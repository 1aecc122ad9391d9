package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/lwai/onboarding/internal/automation"
	"github.com/lwai/onboarding/internal/chat"
	"github.com/lwai/onboarding/internal/config"
	"github.com/lwai/onboarding/internal/hubspot"
	"github.com/lwai/onboarding/internal/refdata"
	"github.com/lwai/onboarding/internal/sheets"
	"github.com/lwai/onboarding/internal/storage"
	"github.com/lwai/onboarding/internal/timeback"
	"github.com/lwai/onboarding/internal/tracker"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	simulate := flag.Bool("simulate", false, "skip platform account creation and assignments; trackers, logs and CRM updates still run")
	flag.Parse()

	log.Println("Starting onboarding automation...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *simulate {
		cfg.Run.Simulate = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration invalid:\n%v", err)
	}
	log.Println("Configuration validated")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	source, err := storage.NewSource(ctx, storage.Config{
		Bucket:      cfg.Source.Bucket,
		LeadsKey:    cfg.Source.LeadsKey,
		AccountsKey: cfg.Source.AccountsKey,
		Region:      cfg.Source.Region,
		AWSProfile:  cfg.Source.AWSProfile,
	})
	if err != nil {
		log.Fatalf("Failed to set up S3 source: %v", err)
	}

	sheetClient, err := sheets.NewClient(ctx, []byte(cfg.Google.CredentialsJSON))
	if err != nil {
		log.Fatalf("Failed to set up Google Sheets client: %v", err)
	}
	store := refdata.NewStore(sheetClient, cfg.Google.MappingSpreadsheetID)

	platform := timeback.NewClient(timeback.Config{
		Endpoint:     cfg.Platform.Endpoint,
		ClientID:     cfg.Platform.ClientID,
		ClientSecret: cfg.Platform.ClientSecret,
		Timeout:      cfg.Platform.Timeout(),
		RateDelay:    cfg.Platform.RateDelay(),
	})

	crm := hubspot.NewClient(hubspot.Config{
		AccessToken:     cfg.HubSpot.AccessToken,
		ClientID:        cfg.HubSpot.ClientID,
		ClientSecret:    cfg.HubSpot.ClientSecret,
		TrackerProperty: cfg.HubSpot.TrackerProperty,
		RateDelay:       cfg.Platform.RateDelay(),
	})

	notifier := chat.NewNotifier(cfg.Chat.WebhookURL, cfg.Chat.ThreadKey)

	templates, err := store.TrackerTemplates(ctx)
	if err != nil {
		log.Fatalf("Failed to load tracker templates: %v", err)
	}
	trackers := tracker.NewProvisioner(sheetClient, templates, cfg.Google.TrackersFolderID)

	runner := automation.NewRunner(source, store, platform, trackers, crm, notifier, automation.Options{
		LeadMaxAge: time.Duration(cfg.Run.LeadMaxAgeDays) * 24 * time.Hour,
		Simulate:   cfg.Run.Simulate,
	})

	summary, err := runner.Run(ctx)
	if err != nil {
		log.Printf("Run failed: %v", err)
		os.Exit(1)
	}

	log.Printf("Run complete: %d processed, %d accounts created, %d failed",
		summary.TotalProcessed, summary.AccountsCreated, summary.AccountsFailed)
}
