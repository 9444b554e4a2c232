package main

import (
	"context"
	"flag"
	"log"
	"net/http"

	"campaign-mailer/config"
	"campaign-mailer/database"
	"campaign-mailer/handlers"
	"campaign-mailer/services"

	"github.com/gorilla/mux"
)

func main() {
	migrateCredentials := flag.Bool("migrate-credentials", false, "clear legacy (non-reversible) stored app passwords and exit")
	flag.Parse()

	// Load configuration from .env
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	// Initialize database connection
	db, err := database.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Error connecting to database: %v", err)
	}
	defer db.Close()

	// Apply database migrations
	if err := database.ApplyMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		log.Fatalf("Error applying database migrations: %v", err)
	}

	store := database.NewStore(db)
	codec, err := services.NewCredentialCodec(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("Error initialising credential codec: %v", err)
	}
	transport, err := services.NewGomailTransport(cfg)
	if err != nil {
		log.Fatalf("Error configuring mail transport: %v", err)
	}

	setup := services.NewSetupService(store, codec, transport)
	if *migrateCredentials {
		cleared, err := setup.MigrateLegacyCredentials(context.Background())
		if err != nil {
			log.Fatalf("Credential migration failed: %v", err)
		}
		log.Printf("Credential migration completed, %d legacy app passwords cleared", cleared)
		return
	}

	dispatcher := services.NewDispatcher(transport, store, cfg.DispatchWorkers, cfg.SendTimeout)
	campaigns := services.NewCampaignService(store, codec, dispatcher)
	analytics := services.NewAnalyticsService(store, cfg.AnalyticsDefaultDays)

	// Set up router
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(handlers.RequireUser(store, cfg.AuthHeader))

	// API Routes
	api.HandleFunc("/setup/gmail", handlers.SetupMailboxHandler(setup)).Methods("POST")
	api.HandleFunc("/setup/purpose", handlers.SetupPurposeHandler(setup)).Methods("POST")
	api.HandleFunc("/setup/status", handlers.SetupStatusHandler(setup)).Methods("GET")
	api.HandleFunc("/send-emails", handlers.SendCampaignHandler(campaigns)).Methods("POST")
	api.HandleFunc("/preview", handlers.PreviewHandler()).Methods("POST")
	api.HandleFunc("/dashboard/campaigns", handlers.GetCampaignsHandler(campaigns)).Methods("GET")
	api.HandleFunc("/dashboard/stats", handlers.GetDashboardStatsHandler(analytics)).Methods("GET")
	api.HandleFunc("/dashboard/analytics", handlers.GetAnalyticsHandler(analytics)).Methods("GET")
	api.HandleFunc("/logs", handlers.GetLogsHandler(store)).Methods("GET")

	// Start server
	log.Printf("Server starting on port %s...", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, r))
}
