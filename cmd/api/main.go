package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"taskora.org/internal/auth"
	"taskora.org/internal/httpapi"
	"taskora.org/internal/obs"
)

var version = "0.3.0"

func main() {
	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()

	// Подключение к БД (если задан DSN), чтобы /readyz мог пинговать БД
	var db *sql.DB
	if dsn := os.Getenv("TASKORA_PG_DSN"); dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	// Хранилище аккаунтов/сессий: Postgres, либо память для dev-режима
	var store auth.Store
	if db != nil {
		store = auth.NewPGStore(db)
	} else {
		log.Println("TASKORA_PG_DSN is not set, using in-memory store")
		store = auth.NewInMemory()
	}

	var authOpts []auth.ServiceOption
	if secret := os.Getenv("TASKORA_JWT_SECRET"); secret != "" {
		authOpts = append(authOpts, auth.WithJWTSecret(secret))
	}
	authSvc, err := auth.NewService(store, authOpts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	// HTTP API
	probe := httpapi.ReadyProbe{DB: db}
	api := httpapi.New(probe, authSvc, version)

	handler := api.Handler()
	handler = httpapi.RateLimit(handler, 50, 25)
	handler = httpapi.MaxBodyBytes(handler, 8<<20)
	handler = httpapi.CORS(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.LoggingJSON(handler)
	handler = httpapi.RequestID(handler)

	addr := os.Getenv("TASKORA_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting taskora-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// gRPC health endpoint (опционально)
	var stopGRPC func()
	if grpcAddr := os.Getenv("TASKORA_GRPC_ADDR"); grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv, stop := httpapi.NewGRPCServer(probe, 10*time.Second)
		stopGRPC = stop
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				log.Printf("grpc serve: %v", err)
			}
		}()
		log.Printf("gRPC health on %s", grpcAddr)
	}

	// Фоновая очистка протухших сессий
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				if n, err := authSvc.PurgeExpiredSessions(cleanupCtx); err != nil {
					log.Printf("session purge: %v", err)
				} else if n > 0 {
					log.Printf("purged %d expired sessions", n)
				}
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	cancelCleanup()
	if stopGRPC != nil {
		stopGRPC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
