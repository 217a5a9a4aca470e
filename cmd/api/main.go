package main

import (
	"log"

	"submission-backend/internal/bootstrap"
	"submission-backend/internal/shared/config"
	"submission-backend/internal/shared/server"
)

func main() {
	cfg := config.Load()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	if err := app.Janitor.Start(); err != nil {
		log.Fatalf("start janitor: %v", err)
	}
	defer app.Janitor.Stop()

	addr := server.Addr(cfg.Port)
	log.Printf("Starting API server on %s", addr)

	if err := app.Router.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
