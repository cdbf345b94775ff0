// Command seed creates (or promotes) the admin account named by
// ADMIN_EMAIL / ADMIN_PASSWORD. It is safe to run repeatedly.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sakif/learnmade/internal/auth"
	"github.com/sakif/learnmade/internal/config"
	sqliteRepo "github.com/sakif/learnmade/internal/repository/sqlite"
	"github.com/sakif/learnmade/internal/service"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load(".env")
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.Auth.AdminEmail == "" || cfg.Auth.AdminPassword == "" {
		logger.Error("ADMIN_EMAIL and ADMIN_PASSWORD must both be set")
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		logger.Error("failed to create database directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	// Seeding never issues tokens or subscribes anyone, so the service gets
	// a throwaway secret and no subscription side effect.
	tokens, err := auth.NewTokenService("seed-only-secret-never-issued", time.Minute)
	if err != nil {
		logger.Error("token service", slog.String("error", err.Error()))
		os.Exit(1)
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	accounts := service.NewAuthService(db.Users(), tokens, auth.NewPasswordService(), nil, cfg.Auth.AdminEmail, quiet)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, created, err := accounts.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword)
	if err != nil {
		logger.Error("seeding admin failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if created {
		logger.Info("admin user created", slog.String("email", user.Email), slog.String("id", user.ID))
	} else {
		logger.Info("admin user already present, role ensured", slog.String("email", user.Email), slog.String("id", user.ID))
	}
}
