package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"socialdraft/internal/config"
	"socialdraft/internal/database"
	"socialdraft/internal/identity"
)

// Operator tool: provision a local user for a known identity-provider id
// and seed the default template set, for environments where the webhook
// never fired (local development, data repair).
func main() {
	var (
		externalID = flag.String("external-id", "", "identity provider user id (required)")
		email      = flag.String("email", "", "user email (optional, placeholder derived from external id when empty)")
		name       = flag.String("name", "", "display name (optional)")
		dbHost     = flag.String("db-host", "", "database host (optional, defaults to DATABASE_HOST)")
		dbPort     = flag.Int("db-port", 0, "database port (optional, defaults to DATABASE_PORT)")
		dbName     = flag.String("db-name", "", "database name (optional, defaults to POSTGRES_DB)")
		dbUser     = flag.String("db-user", "", "database user (optional, defaults to POSTGRES_USER)")
		dbPass     = flag.String("db-password", "", "database password (optional, defaults to POSTGRES_PASSWORD)")
		sslMode    = flag.String("db-sslmode", "", "database sslmode (optional, defaults to DATABASE_SSLMODE)")
	)
	flag.Parse()

	id := strings.TrimSpace(*externalID)
	if id == "" {
		log.Fatal("missing required flag: --external-id")
	}

	dbCfg, err := loadDatabaseConfig(*dbHost, *dbPort, *dbName, *dbUser, *dbPass, *sslMode)
	if err != nil {
		log.Fatalf("load database config: %v", err)
	}

	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	ctx := context.Background()
	svc := identity.NewService(db, slog.Default())

	var existing database.User
	switch err := db.Where("external_id = ?", id).First(&existing).Error; {
	case err == nil:
		if err := svc.SeedDefaultTemplates(ctx, existing.ID); err != nil {
			log.Fatalf("seed default templates: %v", err)
		}
		fmt.Printf("user %s already exists (id %s), default templates ensured\n", id, existing.ID)
		return
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		log.Fatalf("query user: %v", err)
	}

	userEmail := strings.TrimSpace(*email)
	if userEmail == "" {
		userEmail = id + "@placeholder.local"
	}

	user := database.User{
		ExternalID: id,
		Email:      userEmail,
		Name:       strings.TrimSpace(*name),
	}
	if err := db.Create(&user).Error; err != nil {
		log.Fatalf("create user: %v", err)
	}
	if err := svc.SeedDefaultTemplates(ctx, user.ID); err != nil {
		log.Fatalf("seed default templates: %v", err)
	}

	fmt.Printf("created user %s (external id %s) with default templates\n", user.ID, id)
}

func loadDatabaseConfig(host string, port int, name, user, password, sslmode string) (config.DatabaseConfig, error) {
	if strings.TrimSpace(host) == "" {
		host = os.Getenv("DATABASE_HOST")
	}
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("POSTGRES_DB")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("POSTGRES_USER")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("POSTGRES_PASSWORD")
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = os.Getenv("DATABASE_SSLMODE")
	}

	if strings.TrimSpace(host) == "" {
		host = "localhost"
	}
	if port <= 0 {
		port = 5432
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = "disable"
	}
	if strings.TrimSpace(name) == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if strings.TrimSpace(user) == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if strings.TrimSpace(password) == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}

	return config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslmode,
	}, nil
}
