package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/vncsmyrnk/servervote/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/servervote/internal/app"
	"github.com/vncsmyrnk/servervote/internal/config"
	"github.com/vncsmyrnk/servervote/internal/logging"
)

// Applies one migration by name ("create_votes.up") or every up migration
// with -all.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	var all bool
	basePath := filepath.Join(".", "internal", "adapters", "repository", "postgres", "migrations")
	flag.BoolVar(&all, "all", false, "Apply every up migration in order")
	flag.StringVar(&basePath, "dir", basePath, "Migrations directory")
	flag.Parse()

	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	var names []string
	switch {
	case all:
		names, err = upMigrations(basePath)
	case flag.NArg() == 1:
		var name string
		name, err = migrationFilePath(basePath, flag.Arg(0))
		names = []string{name}
	default:
		log.Fatal("a migration name or -all is required")
	}
	if err != nil {
		log.WithError(err).Fatal("failed to resolve migrations")
	}

	ctx := context.Background()
	db, err := postgres.Open(ctx, app.PostgresConfig(cfg.Postgres).ConnString())
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(basePath, name))
		if err != nil {
			log.WithError(err).Fatal("failed to read migration")
		}
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			log.WithError(err).WithField("migration", name).Fatal("failed to execute migration")
		}
		log.WithField("migration", name).Info("migration executed successfully")
	}
}

func upMigrations(basePath string) ([]string, error) {
	entries, err := os.ReadDir(basePath)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func migrationFilePath(basePath string, migrationName string) (string, error) {
	regex, err := regexp.Compile(fmt.Sprintf(`^.*%s\.sql$`, regexp.QuoteMeta(migrationName)))
	if err != nil {
		return "", fmt.Errorf("invalid pattern: %w", err)
	}

	files, err := os.ReadDir(basePath)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if regex.MatchString(f.Name()) {
			return f.Name(), nil
		}
	}

	return "", fmt.Errorf("migration file not found")
}
