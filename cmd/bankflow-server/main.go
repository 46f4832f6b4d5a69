// bankflow-server exposes the record/replay/extract pipeline over HTTP: a
// recipe CRUD surface, a live recording session, and asynchronous replay runs
// with operator skip/abort decisions.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	pw "github.com/playwright-community/playwright-go"
	"github.com/redis/go-redis/v9"

	"bankflow/cleanup"
	"bankflow/config"
	"bankflow/eventbus"
	"bankflow/pipeline"
	"bankflow/recipes"
)

func main() {
	configPath := flag.String("config", os.Getenv("BANKFLOW_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadServerConfig(*configPath)
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr()})

	// Progress events are best-effort; the pipeline runs fine without NATS.
	var bus *eventbus.NATSBus
	if b, err := eventbus.NewNATSBus(eventbus.NATSConfig{URL: cfg.NatsURL, Subject: cfg.ProgressSubject}); err != nil {
		log.Printf("⚠️  NATS unavailable, progress events disabled: %v", err)
	} else {
		bus = b
		defer bus.Close()
		log.Printf("✅ Publishing progress events on %s", cfg.ProgressSubject)
	}

	var publisher recipes.Publisher
	if bus != nil {
		publisher = bus
	}
	store := recipes.NewRedisStore(rdb, publisher)

	log.Println("🔧 Installing Playwright Chromium browser (one-time setup)...")
	if err := pw.Install(&pw.RunOptions{Browsers: []string{"chromium"}}); err != nil {
		log.Printf("⚠️  Playwright installation warning: %v (continuing anyway)", err)
	}
	pwInstance, err := pw.Run()
	if err != nil {
		log.Fatalf("❌ Failed to start Playwright: %v", err)
	}
	defer pwInstance.Stop()

	launchOptions := pw.BrowserTypeLaunchOptions{Headless: pw.Bool(cfg.Headless)}
	if cfg.BrowserChannel != "" {
		launchOptions.Channel = pw.String(cfg.BrowserChannel)
	}
	browser, err := pwInstance.Chromium.Launch(launchOptions)
	if err != nil {
		log.Fatalf("❌ Failed to launch browser: %v", err)
	}
	defer browser.Close()

	var cleaner pipeline.Cleaner
	llm := cleanup.NewClient(cleanup.Config{
		Provider: cfg.LLMProvider,
		URL:      cfg.LLMURL,
		Model:    cfg.LLMModel,
		APIKey:   cfg.LLMAPIKey,
	})
	if llm.Enabled() {
		cleaner = llm
		log.Printf("✅ Cleanup adapter enabled (%s / %s)", cfg.LLMProvider, cfg.LLMModel)
	}

	var importer pipeline.Importer
	if cfg.ImportURL != "" {
		importer = pipeline.NewHTTPImporter(cfg.ImportURL)
		log.Printf("✅ Forwarding extracted rows to %s", cfg.ImportURL)
	}

	srv := newServer(cfg, store, bus, browser, cleaner, importer)
	go srv.runs.cleanupWorker(30 * time.Minute)

	r := mux.NewRouter()
	r.HandleFunc("/health", srv.handleHealth).Methods("GET")

	r.HandleFunc("/recipes", srv.handleListRecipes).Methods("GET")
	r.HandleFunc("/recipes", srv.handleCreateRecipe).Methods("POST")
	r.HandleFunc("/recipes/{id}", srv.handleGetRecipe).Methods("GET")
	r.HandleFunc("/recipes/{id}", srv.handleUpdateRecipe).Methods("PUT")
	r.HandleFunc("/recipes/{id}", srv.handleDeleteRecipe).Methods("DELETE")

	r.HandleFunc("/record/start", srv.handleRecordStart).Methods("POST")
	r.HandleFunc("/record/status", srv.handleRecordStatus).Methods("GET")
	r.HandleFunc("/record/stop", srv.handleRecordStop).Methods("POST")
	r.HandleFunc("/record/cancel", srv.handleRecordCancel).Methods("POST")

	r.HandleFunc("/recipes/{id}/run", srv.handleStartRun).Methods("POST")
	r.HandleFunc("/runs/{id}", srv.handleGetRun).Methods("GET")
	r.HandleFunc("/runs/{id}/pending", srv.handleGetPendingDecision).Methods("GET")
	r.HandleFunc("/runs/{id}/decision", srv.handlePostDecision).Methods("POST")

	log.Printf("🚀 bankflow server starting on %s", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, r); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
