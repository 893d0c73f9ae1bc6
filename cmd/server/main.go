package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"policy-audit/internal/audit"
	"policy-audit/internal/config"
	"policy-audit/internal/db"
	"policy-audit/internal/embedding"
	"policy-audit/internal/helper"
	"policy-audit/internal/index"
	"policy-audit/internal/report"
	"policy-audit/internal/retriever"
	"policy-audit/internal/scorer"
	"policy-audit/internal/server"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("Config not loaded, using defaults")
		cfg = config.Default()
	}
	log.Debug().Interface("config", cfg).Msg("Loaded config")

	if err := helper.CreateFolder(cfg.Reports.Dir); err != nil {
		log.Fatal().Err(err).Msg("Error creating reports folder")
	}

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}

	indexer, err := index.New(&cfg.RAG, embedder)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing index")
	}
	retr := retriever.New(indexer, embedder, nil)
	router := scorer.NewRouter(&cfg.Providers)
	compiler := report.NewCompiler(cfg.Reports.Dir)

	var store audit.Store
	if cfg.Database.DSN != "" {
		dbClient, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Error connecting to database")
		}
		dbInstance := db.NewDB(dbClient, cfg.Database.Debug)
		defer dbInstance.Close()

		if err := db.InitDB(context.Background(), dbInstance); err != nil {
			log.Fatal().Err(err).Msg("Error initializing database")
		}
		store = &db.JobStore{DB: dbInstance}
	} else {
		log.Warn().Msg("No database configured, job records are in-memory only")
	}

	pipeline := audit.NewPipeline(cfg, indexer, retr, router, compiler)
	manager := audit.NewManager(cfg, pipeline, store)

	srv := server.New(cfg, manager, indexer, retr, router)
	if err := srv.Run(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}
