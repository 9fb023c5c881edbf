package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cleanops.io/internal/audit"
	"cleanops.io/internal/auth"
	"cleanops.io/internal/directory"
	"cleanops.io/internal/httpapi"
	"cleanops.io/internal/notify"
	"cleanops.io/internal/obs"
	"cleanops.io/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	// Local overrides only; production reads the real environment.
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("CLEANOPS_PG_DSN")
	if dsn == "" {
		log.Fatal("CLEANOPS_PG_DSN is required")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	ledger := audit.NewRecorder(store)
	dir := directory.NewService(store, ledger, auth.HashPassword,
		directory.WithNotifier(notify.NewLogMailer()))

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, version, dir, ledger, store)

	addr := os.Getenv("CLEANOPS_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting cleanops-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
