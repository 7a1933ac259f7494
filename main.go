package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"audiograb/api"
	"audiograb/config"
	"audiograb/job"
	"audiograb/media"
	"audiograb/settings"
	"audiograb/transcode"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Durable last-used settings; the output folder is fixed at startup.
	store := settings.NewStore(cfg.SettingsFile)
	st := store.Load()
	if err := os.MkdirAll(st.OutputFolder, 0o755); err != nil {
		log.Fatalf("Failed to create output directory %s: %v", st.OutputFolder, err)
	}

	// 3. External tool adapters
	fetcher, err := media.NewYTDLP(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize fetcher: %v", err)
	}
	converter, err := transcode.NewFFmpeg(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize converter: %v", err)
	}

	// 4. Orchestrator and router
	orchestrator := job.NewOrchestrator(store, fetcher, converter, st.OutputFolder)
	router := api.SetupRouter(orchestrator, cfg, st.OutputFolder)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// 5. Run until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on port %s (output: %s)", cfg.Port, st.OutputFolder)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	<-ctx.Done()

	stop()
	log.Println("Shutting down gracefully, press Ctrl+C again to force")

	// In-flight submissions get a short grace period to finish their
	// responses before the listener closes.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Println("Server exiting")
}
