package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/FKhadivpour/RAG-Application/internal/chunker"
	"github.com/FKhadivpour/RAG-Application/internal/config"
	"github.com/FKhadivpour/RAG-Application/internal/embedding"
	"github.com/FKhadivpour/RAG-Application/internal/helper"
	"github.com/FKhadivpour/RAG-Application/internal/index"
	"github.com/FKhadivpour/RAG-Application/internal/ingest"
	"github.com/FKhadivpour/RAG-Application/internal/llmservice"
	"github.com/FKhadivpour/RAG-Application/internal/loader"
	"github.com/FKhadivpour/RAG-Application/internal/models"
	"github.com/FKhadivpour/RAG-Application/internal/retriever"
	"github.com/FKhadivpour/RAG-Application/internal/server"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", defaultConfigPath, "Path to the config file")
	ingestDir := flag.String("ingest", "", "Directory of documents to ingest")
	query := flag.String("query", "", "Query to be answered")
	serve := flag.Bool("serve", false, "Start the HTTP server")
	dryRun := flag.Bool("dry-run", false, "Load and chunk documents without writing to the index")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Error loading config")
	}
	log.Debug().Interface("config", cfg).Msg("Loaded config")

	ctx := context.Background()

	switch {
	case *ingestDir != "":
		ingestDocuments(ctx, cfg, *ingestDir, *dryRun)
	case *query != "":
		answerQuery(ctx, cfg, *query)
	case *serve:
		runServer(cfg)
	default:
		log.Fatal().Msg("Please provide one of -ingest <dir>, -query <text> or -serve")
	}
}

func chunkerFromConfig(cfg *config.Config) (*chunker.Chunker, error) {
	return chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
}

func openStore(ctx context.Context, cfg *config.Config, model models.ModelIdentity) (index.Store, error) {
	switch cfg.Index.Backend {
	case "sqlite":
		if err := helper.CreateFolder(filepath.Dir(cfg.Index.Path)); err != nil {
			return nil, err
		}
		return index.NewSQLiteStore(cfg.Index.Path, model, cfg.EmbedLLM.Dimensions)
	case "chromem":
		if err := helper.CreateFolder(cfg.Index.Path); err != nil {
			return nil, err
		}
		return index.NewChromemStore(cfg.Index.Path, cfg.Index.Collection, model, cfg.EmbedLLM.Dimensions)
	case "postgres":
		db := index.ConnectPostgres(cfg.Index.DSN, cfg.Index.Password, cfg.Index.Debug)
		return index.NewPostgresStore(ctx, db, model, cfg.EmbedLLM.Dimensions)
	default:
		return nil, fmt.Errorf("%w: unknown index backend %q", models.ErrInvalidConfig, cfg.Index.Backend)
	}
}

func buildPipeline(ctx context.Context, cfg *config.Config) (*ingest.Pipeline, index.Store, error) {
	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return nil, nil, err
	}

	store, err := openStore(ctx, cfg, embedder.Model())
	if err != nil {
		return nil, nil, err
	}

	ck, err := chunkerFromConfig(cfg)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	if err := helper.CreateFolder(filepath.Dir(cfg.Ingest.LogPath)); err != nil {
		store.Close()
		return nil, nil, err
	}
	journal, err := ingest.OpenLog(cfg.Ingest.LogPath)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	retry := ingest.RetryPolicy{
		MaxAttempts: cfg.Ingest.MaxAttempts,
		BaseBackoff: cfg.Ingest.BaseBackoff(),
	}
	pipeline := ingest.New(ck, embedder, store, journal, retry, cfg.Ingest.BatchSize, cfg.Ingest.Workers)
	return pipeline, store, nil
}

func ingestDocuments(ctx context.Context, cfg *config.Config, dir string, dryRun bool) {
	docs, err := loader.LoadDir(dir)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading documents")
	}
	if len(docs) == 0 {
		log.Warn().Str("dir", dir).Msg("No documents found")
		return
	}

	if dryRun {
		ck, err := chunkerFromConfig(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Error building chunker")
		}
		for _, doc := range docs {
			chunks := ck.Split(doc)
			log.Info().Str("document", doc.ID).Int("chunks", len(chunks)).Msg("Would ingest")
		}
		return
	}

	pipeline, store, err := buildPipeline(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error building ingestion pipeline")
	}
	defer store.Close()

	if pending := pipeline.Pending(); len(pending) > 0 {
		log.Warn().Strs("documents", pending).Msg("Found interrupted ingestions, re-ingest these documents")
	}

	outcomes := pipeline.Ingest(ctx, docs)

	var ingested, skipped, failed int
	for _, outcome := range outcomes {
		switch outcome.Status {
		case models.OutcomeIngested:
			ingested++
		case models.OutcomeSkipped:
			skipped++
		case models.OutcomeFailed:
			failed++
		}
	}
	log.Info().Int("ingested", ingested).Int("skipped", skipped).Int("failed", failed).Msg("Ingestion finished")
	if failed > 0 {
		os.Exit(1)
	}
}

func buildRetriever(ctx context.Context, cfg *config.Config) (*retriever.Retriever, index.Store, error) {
	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore(ctx, cfg, embedder.Model())
	if err != nil {
		return nil, nil, err
	}
	return retriever.New(embedder, store, retriever.OptionsFromConfig(&cfg.RAG)), store, nil
}

func answerQuery(ctx context.Context, cfg *config.Config, query string) {
	ret, store, err := buildRetriever(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error building retriever")
	}
	defer store.Close()

	bundle, err := ret.Retrieve(ctx, models.Query{Text: query})
	if err != nil {
		log.Fatal().Err(err).Msg("Error retrieving context")
	}
	log.Info().Int("chunks", len(bundle.Chunks)).Int("context_chars", bundle.TotalChars).Msg("Retrieved context")

	answer, err := llmservice.Generate(ctx, &cfg.InferLLM, bundle.Prompt)
	if err != nil {
		log.Fatal().Err(err).Msg("Error generating answer")
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", query)

	log.Info().Msg("Sources: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	for _, sc := range bundle.Chunks {
		fmt.Printf("%s (score %.3f)\n", sc.Chunk.ChunkID, sc.Score)
	}
	fmt.Println()

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", answer)
}

func runServer(cfg *config.Config) {
	ctx := context.Background()
	ret, store, err := buildRetriever(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error building retriever")
	}
	defer store.Close()

	generate := func(ctx context.Context, prompt string) (string, error) {
		return llmservice.Generate(ctx, &cfg.InferLLM, prompt)
	}
	srv := server.New(ret, generate)
	if err := srv.Run(cfg.Server.Addr); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}
