//cmd/seeder/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/unclebandit/mailcampaign-backend/internal/config"
	"github.com/unclebandit/mailcampaign-backend/internal/db"
	"github.com/unclebandit/mailcampaign-backend/internal/logger"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
	"github.com/unclebandit/mailcampaign-backend/internal/repository"
	"github.com/unclebandit/mailcampaign-backend/internal/service"
)

// The seeder applies the schema and, for local development, stores a CSV
// file as a saved dataset for one account.
func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	schema := flag.String("schema", "migrations/001_init.sql", "comma-separated SQL files to apply first")
	csvPath := flag.String("csv", "", "CSV file to store as a saved dataset")
	accountID := flag.Int("account", 1, "account that owns the dataset")
	accountEmail := flag.String("account-email", "dev@example.com", "email for the account row when it is created")
	name := flag.String("name", "", "dataset name (defaults to the file name)")
	emailColumn := flag.String("email-column", "", "email column of the CSV (guessed from the headers when empty)")
	providerKind := flag.String("provider", "", "provider preference to set: transactional or smtp")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log.Level, "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal("connect", zap.Error(err))
	}
	defer conn.Close()

	for _, file := range strings.Split(*schema, ",") {
		file = strings.TrimSpace(file)
		if file == "" {
			continue
		}
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatal("read schema", zap.String("file", file), zap.Error(err))
		}
		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			log.Fatal("apply schema", zap.String("file", file), zap.Error(err))
		}
		log.Info("applied", zap.String("file", file))
	}

	if _, err := conn.ExecContext(ctx,
		`INSERT INTO users (id, email) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		*accountID, *accountEmail); err != nil {
		log.Fatal("ensure account", zap.Error(err))
	}

	if *csvPath != "" {
		f, err := os.Open(*csvPath)
		if err != nil {
			log.Fatal("open csv", zap.Error(err))
		}
		table, err := service.ParseCSV(f)
		f.Close()
		if err != nil {
			log.Fatal("parse csv", zap.Error(err))
		}

		dsName := *name
		if dsName == "" {
			dsName = strings.TrimSuffix(filepath.Base(*csvPath), filepath.Ext(*csvPath))
		}
		column := *emailColumn
		if column == "" {
			column = service.GuessEmailColumn(table.Headers)
		}
		datasets := &service.DatasetService{Datasets: &repository.DatasetRepository{DB: conn}, Logger: log}
		ds, err := datasets.CreateDataset(ctx, *accountID, service.DatasetInput{
			Name:        dsName,
			EmailColumn: column,
			Headers:     table.Headers,
			Rows:        table.Rows,
		})
		if err != nil {
			log.Fatal("store dataset", zap.Error(err))
		}
		log.Info("seeded dataset",
			zap.Int("id", ds.ID),
			zap.String("name", ds.Name),
			zap.String("email_column", ds.EmailColumn),
			zap.Int("rows", len(ds.Rows)))
	}

	if *providerKind != "" {
		kind := model.ProviderKind(*providerKind)
		accounts := &repository.AccountRepository{DB: conn}
		if err := accounts.SetProviderPreference(ctx, *accountID, kind); err != nil {
			log.Fatal("set provider", zap.Error(err))
		}
		log.Info("provider preference set", zap.String("provider", string(kind)))
	}

	log.Info("database seeding completed")
}
