package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/invigilation-api/internal/models"
	"github.com/noah-isme/invigilation-api/internal/repository"
	"github.com/noah-isme/invigilation-api/migrations"
	"github.com/noah-isme/invigilation-api/pkg/config"
	"github.com/noah-isme/invigilation-api/pkg/database"
	"github.com/noah-isme/invigilation-api/pkg/logger"
)

func main() {
	var (
		adminEmail    string
		adminLoginID  string
		adminPassword string
		timeout       time.Duration
	)
	flag.StringVar(&adminEmail, "admin-email", "", "Seed an ADMIN account with this email")
	flag.StringVar(&adminLoginID, "admin-login", "admin", "Login id for the seeded ADMIN account")
	flag.StringVar(&adminPassword, "admin-password", "", "Password for the seeded ADMIN account")
	flag.DurationVar(&timeout, "timeout", time.Minute, "Overall timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	applied, err := migrate(ctx, db, migrations.Files)
	if err != nil {
		logr.Fatal("migration failed", zap.Error(err))
	}
	logr.Info("migrations applied", zap.Strings("files", applied))

	if adminEmail == "" {
		return
	}
	if len(adminPassword) < 8 {
		logr.Fatal("admin password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		logr.Fatal("failed to hash password", zap.Error(err))
	}
	admin := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(adminEmail)),
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
		Active:       true,
	}
	if adminLoginID != "" {
		admin.LoginID = &adminLoginID
	}
	if err := repository.NewUserRepository(db).Create(ctx, admin); err != nil {
		logr.Fatal("failed to seed admin", zap.Error(err))
	}
	logr.Info("admin account ready", zap.String("email", admin.Email))
}

// migrate runs every embedded .sql file not yet recorded in schema_migrations, in name order.
func migrate(ctx context.Context, db *sqlx.DB, files fs.FS) ([]string, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW())`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	var applied []string
	for _, name := range names {
		var exists bool
		if err := db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, name); err != nil {
			return applied, fmt.Errorf("check %s: %w", name, err)
		}
		if exists {
			continue
		}
		body, err := fs.ReadFile(files, name)
		if err != nil {
			return applied, err
		}
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return applied, err
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("apply %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("record %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, err
		}
		applied = append(applied, name)
	}
	return applied, nil
}
