package main

import (
	"context"
	"log"

	"moviecat-admin/internal/config"
	"moviecat-admin/internal/fakeapi"
	"moviecat-admin/internal/pkg/logger"
	"moviecat-admin/internal/tracer"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Tracer
	shutdownTracer := tracer.InitTracer(cfg.Tracing, "moviecat-fakeapi")
	defer shutdownTracer(context.Background())

	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	defer sysLogger.Sync()

	// 3. Seed the in-memory catalog
	store := fakeapi.NewStore()
	movieId, err := fakeapi.Seed(store)
	if err != nil {
		log.Panicf("Unable to seed catalog: %v", err)
	}
	log.Printf("Seeded catalog (first movie #%s); staff login %s / %s", movieId, fakeapi.StaffUsername, fakeapi.StaffPassword)

	// 4. Run Server
	srv := fakeapi.New(store, cfg.FakeAPI.JWTSecret, sysLogger)
	log.Fatal(srv.Run(cfg.FakeAPI.Port))
}
