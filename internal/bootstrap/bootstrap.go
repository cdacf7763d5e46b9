// Package bootstrap assembles the service from configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/mpetrov/refragd/internal/codec"
	"github.com/mpetrov/refragd/internal/config"
	"github.com/mpetrov/refragd/internal/core/ports"
	"github.com/mpetrov/refragd/internal/core/selection"
	"github.com/mpetrov/refragd/internal/core/usecase"
	"github.com/mpetrov/refragd/internal/infrastructure/llm/ollama"
	natsqueue "github.com/mpetrov/refragd/internal/infrastructure/queue/nats"
	memoryrepo "github.com/mpetrov/refragd/internal/infrastructure/repository/postgres"
	"github.com/mpetrov/refragd/internal/infrastructure/resilience"
	"github.com/mpetrov/refragd/internal/infrastructure/retriever/pinecone"
	fragmentstore "github.com/mpetrov/refragd/internal/infrastructure/retriever/postgres"
	qdrantretriever "github.com/mpetrov/refragd/internal/infrastructure/retriever/qdrant"
	"github.com/mpetrov/refragd/internal/infrastructure/retriever/static"
)

type App struct {
	Config config.Config

	Queue    ports.MessageQueue
	Index    ports.FragmentIndex
	Pipeline *usecase.Pipeline
	MemoryUC *usecase.MemoryUseCase
	Codec    *codec.Unified
	Strategy string

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	selector, err := buildSelector(cfg)
	if err != nil {
		return nil, fmt.Errorf("build selector: %w", err)
	}

	unified, err := codec.NewUnified(cfg.SerializationFormat)
	if err != nil {
		return nil, fmt.Errorf("init codec: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultPolicy(),
		resilience.WithClassifier(ollama.ClassifyError))
	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient)

	var generator ports.Generator
	if cfg.GenerationEnabled {
		generator = ollama.NewGenerator(ollamaClient)
	}

	var closers []func()
	retriever, index, err := buildRetriever(ctx, cfg, embedder, &closers)
	if err != nil {
		closeAll(closers)
		return nil, err
	}

	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultPolicy(),
			resilience.WithClassifier(natsqueue.ClassifyError)),
	})
	if err != nil {
		closeAll(closers)
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	closers = append(closers, queue.Close)

	var memoryUC *usecase.MemoryUseCase
	if cfg.MemoryEnabled {
		db, err := memoryrepo.OpenDB(cfg.PostgresDSN)
		if err != nil {
			closeAll(closers)
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })

		repo := memoryrepo.NewMemoryRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			closeAll(closers)
			return nil, fmt.Errorf("ensure memory schema: %w", err)
		}
		memoryUC = usecase.NewMemoryUseCase(repo)
	}

	pipeline := usecase.NewPipeline(retriever, generator, selector, cfg.RetrieveK, cfg.SelectionBudget)

	return &App{
		Config:   cfg,
		Queue:    queue,
		Index:    index,
		Pipeline: pipeline,
		MemoryUC: memoryUC,
		Codec:    unified,
		Strategy: cfg.SelectionStrategy,

		closeFn: func() { closeAll(closers) },
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func buildSelector(cfg config.Config) (selection.Selector, error) {
	minScore, err := cfg.ParseMinScore()
	if err != nil {
		return nil, err
	}
	weights, err := cfg.ParseEnsembleWeights()
	if err != nil {
		return nil, err
	}
	return selection.New(selection.Config{
		Strategy:           selection.Strategy(cfg.SelectionStrategy),
		DiversityLambda:    cfg.DiversityLambda,
		Temperature:        cfg.Temperature,
		EnsembleWeights:    weights,
		AdaptivePercentile: cfg.AdaptivePercentile,
		MinScore:           minScore,
	})
}

func buildRetriever(
	ctx context.Context,
	cfg config.Config,
	embedder ports.Embedder,
	closers *[]func(),
) (ports.Retriever, ports.FragmentIndex, error) {
	switch cfg.RetrieverBackend {
	case "static", "":
		r := static.New(embedder, nil)
		return r, r, nil
	case "qdrant":
		r := qdrantretriever.New(cfg.QdrantURL, cfg.QdrantCollection, embedder)
		return r, r, nil
	case "postgres":
		db, err := fragmentstore.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		*closers = append(*closers, func() { _ = db.Close() })

		store := fragmentstore.NewFragmentStore(db, embedder, cfg.EmbeddingDim)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure fragment schema: %w", err)
		}
		return store, store, nil
	case "pinecone":
		r := pinecone.New(cfg.PineconeIndex)
		return r, r, nil
	default:
		return nil, nil, fmt.Errorf("unknown retriever backend %q", cfg.RetrieverBackend)
	}
}

func closeAll(closers []func()) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}
