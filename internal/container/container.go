// Package container implements dependency injection container setup.
// It wires configuration, storage, models, the pipeline stage plugins, and
// the HTTP handlers into a single dig.Container.
package container

import (
	"fmt"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/hibiken/asynq"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/dig"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/climatequery/engine/internal/application/service/pipeline"
	"github.com/climatequery/engine/internal/application/service/retriever"
	"github.com/climatequery/engine/internal/cache"
	"github.com/climatequery/engine/internal/common"
	"github.com/climatequery/engine/internal/config"
	"github.com/climatequery/engine/internal/handler"
	"github.com/climatequery/engine/internal/models/chat"
	"github.com/climatequery/engine/internal/models/embedding"
	"github.com/climatequery/engine/internal/models/rerank"
	"github.com/climatequery/engine/internal/models/utils/ollama"
	"github.com/climatequery/engine/internal/router"
	"github.com/climatequery/engine/internal/tracing"
	"github.com/climatequery/engine/internal/types"
	"github.com/climatequery/engine/internal/types/interfaces"
	"github.com/climatequery/engine/internal/websearch"
)

// BuildContainer constructs the dependency injection container, registering
// every component process_query needs: configuration, tracing, storage
// (vector index + cache), the model providers for each family, the
// pipeline stage plugins, and the HTTP handlers that sit in front of the
// orchestrator.
func BuildContainer(container *dig.Container) *dig.Container {
	// Resource cleanup
	must(container.Provide(NewResourceCleaner, dig.As(new(interfaces.ResourceCleaner))))

	// Core infrastructure
	must(container.Provide(config.LoadConfig))
	must(container.Provide(initTracer))
	must(container.Provide(initAntsPool))
	must(container.Invoke(registerPoolCleanup))
	must(container.Provide(embedding.NewBatchEmbedder))
	must(container.Provide(initOllamaService))

	// Storage
	must(container.Provide(initDatabase))
	must(container.Provide(initElasticsearchClient))
	must(container.Provide(newVectorIndexClient))
	must(container.Invoke(registerVectorIndexCleanup))
	must(container.Provide(newCacheStore))
	must(container.Invoke(registerCacheCleanup))

	// Model providers, one per family plus embedding and rerank
	must(container.Provide(initEmbeddingProvider))
	must(container.Provide(initReranker))
	must(container.Provide(initLLMProviders))
	must(container.Provide(initWebSearch))

	// Feedback write path: the handler must be registered before the
	// worker server starts, so initAsynqClient does both in order.
	must(container.Provide(initAsynqClient))

	// Pipeline: EventManager first, then every stage plugin registers
	// itself against it, then the orchestrator that drives the sequence.
	must(container.Provide(pipeline.NewEventManager))
	must(container.Invoke(registerPipelineStages))
	must(container.Provide(newOrchestrator))

	// HTTP handlers
	must(container.Provide(handler.NewQueryHandler))
	must(container.Provide(handler.NewSystemHandler))
	must(container.Provide(handler.NewFeedbackHandler))

	// Router
	must(container.Provide(router.NewRouter))

	return container
}

// must panics on a non-nil error: a wiring mistake should abort the
// process immediately rather than surface as a confusing runtime
// nil-pointer later.
func must(err error) {
	if err != nil {
		panic(err)
	}
}

func initTracer() (*tracing.Tracer, error) {
	return tracing.InitTracer()
}

// initAntsPool builds the goroutine pool embedding.NewBatchEmbedder uses to
// parallelize BatchEmbed calls, sized from pipeline.worker_pool_size.
func initAntsPool(cfg *config.Config) (*ants.Pool, error) {
	return ants.NewPool(cfg.Pipeline.WorkerPoolSize, ants.WithPreAlloc(true))
}

func registerPoolCleanup(pool *ants.Pool, cleaner interfaces.ResourceCleaner) {
	cleaner.RegisterWithName("AntsPool", func() error {
		pool.Release()
		return nil
	})
}

// initOllamaService constructs the Ollama client used by any model entry
// configured with source "local". Embedding and chat construction only
// invoke it when a local model is actually configured.
func initOllamaService() (*ollama.OllamaService, error) {
	return ollama.GetOllamaService()
}

// initDatabase opens the postgres connection backing the vector index when
// vector_database.driver is "postgres" (the default). It returns a nil,
// nil pair for every other driver so newVectorIndexClient can tell which
// backing client it actually has.
func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	if cfg.Vector.Driver != "" && cfg.Vector.Driver != "postgres" {
		return nil, nil
	}
	if cfg.Vector.DSN == "" {
		return nil, fmt.Errorf("vector_database.dsn is required for the postgres driver")
	}
	db, err := gorm.Open(postgres.Open(cfg.Vector.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)
	return db, nil
}

// initElasticsearchClient builds the elasticsearch client backing the
// vector index when vector_database.driver is "elasticsearch".
func initElasticsearchClient(cfg *config.Config) (*elasticsearch.TypedClient, error) {
	if cfg.Vector.Driver != "elasticsearch" {
		return nil, nil
	}
	return elasticsearch.NewTypedClient(elasticsearch.Config{Addresses: []string{cfg.Vector.DSN}})
}

func newVectorIndexClient(
	cfg *config.Config, db *gorm.DB, esClient *elasticsearch.TypedClient,
) (interfaces.VectorIndexClient, error) {
	return retriever.NewVectorIndexClient(cfg.Vector, db, esClient, cfg.Pipeline.HybridAlpha)
}

// registerVectorIndexCleanup releases the sparse tokenizer's dictionary
// resources; both driver implementations expose Close for this.
func registerVectorIndexCleanup(index interfaces.VectorIndexClient, cleaner interfaces.ResourceCleaner) {
	if closer, ok := index.(interface{ Close() error }); ok {
		cleaner.RegisterWithName("VectorIndexClient", closer.Close)
	}
}

func newCacheStore(cfg *config.Config) (interfaces.CacheStore, error) {
	return cache.NewCacheStore(cfg.Cache, cfg.Pipeline.CacheMemoryBound, cfg.Pipeline.Timeouts.CacheOp)
}

func registerCacheCleanup(store interfaces.CacheStore, cleaner interfaces.ResourceCleaner) {
	if closer, ok := store.(interface{ Close() error }); ok {
		cleaner.RegisterWithName("CacheStore", closer.Close)
	}
}

// findModelConfig returns the first models[] entry of the given type: one
// entry per role (embedding, rerank, each LLM family).
func findModelConfig(cfg *config.Config, modelType string) (*config.ModelConfig, bool) {
	for i := range cfg.Models {
		if cfg.Models[i].Type == modelType {
			return &cfg.Models[i], true
		}
	}
	return nil, false
}

func initEmbeddingProvider(cfg *config.Config) (interfaces.EmbeddingProvider, error) {
	mc, ok := findModelConfig(cfg, "embedding")
	if !ok {
		return nil, fmt.Errorf("no models[] entry with type \"embedding\" configured")
	}
	embedder, err := embedding.NewEmbedder(embedding.Config{
		Source:     types.ModelSource(mc.Source),
		BaseURL:    mc.BaseURL,
		ModelName:  mc.ModelName,
		APIKey:     mc.APIKey,
		Dimensions: mc.Dimensions,
		ModelID:    mc.ModelID,
	})
	if err != nil {
		return nil, fmt.Errorf("init embedding model: %w", err)
	}
	provider, err := embedding.NewProvider(embedder)
	if err != nil {
		return nil, err
	}
	return provider, nil
}

func initReranker(cfg *config.Config) (interfaces.Reranker, error) {
	mc, ok := findModelConfig(cfg, "rerank")
	if !ok {
		return nil, fmt.Errorf("no models[] entry with type \"rerank\" configured")
	}
	reranker, err := rerank.NewReranker(&rerank.RerankerConfig{
		APIKey:    mc.APIKey,
		BaseURL:   mc.BaseURL,
		ModelName: mc.ModelName,
		Source:    types.ModelSource(mc.Source),
		ModelID:   mc.ModelID,
	})
	if err != nil {
		return nil, fmt.Errorf("init rerank model: %w", err)
	}
	return rerank.NewProvider(reranker), nil
}

// initLLMProviders builds one chat.Provider per model family declared in
// models[]. At least one of the two families must be configured; when
// only one is, the returned map serves the other family with that same
// provider, so a query the router sends to the missing family degrades to
// the configured one.
func initLLMProviders(cfg *config.Config) (map[types.ModelFamily]interfaces.LLMProvider, error) {
	families := []struct {
		modelType string
		family    types.ModelFamily
	}{
		{"llm_high_quality", types.HighQuality},
		{"llm_high_coverage", types.HighCoverage},
	}

	byFamily := make(map[types.ModelFamily]interfaces.LLMProvider, len(families))
	for _, f := range families {
		mc, ok := findModelConfig(cfg, f.modelType)
		if !ok {
			continue
		}
		backend, err := chat.NewChat(&chat.ChatConfig{
			Source:    types.ModelSource(mc.Source),
			BaseURL:   mc.BaseURL,
			ModelName: mc.ModelName,
			APIKey:    mc.APIKey,
			ModelID:   mc.ModelID,
		})
		if err != nil {
			return nil, fmt.Errorf("init %s chat model: %w", f.modelType, err)
		}
		byFamily[f.family] = chat.NewProvider(backend, f.family, &chat.ChatOptions{Temperature: 0.2}, cfg.Pipeline.Timeouts.LLM)
	}
	if len(byFamily) == 0 {
		return nil, fmt.Errorf("no models[] entry with type \"llm_high_quality\" or \"llm_high_coverage\" configured")
	}
	if len(byFamily) == 1 {
		var configured interfaces.LLMProvider
		for _, provider := range byFamily {
			configured = provider
		}
		byFamily[types.HighQuality] = configured
		byFamily[types.HighCoverage] = configured
	}
	return byFamily, nil
}

// primaryLLM picks the model used for classification and language
// detection, which are not tied to a family: HighQuality when available,
// otherwise whichever family is configured.
func primaryLLM(byFamily map[types.ModelFamily]interfaces.LLMProvider) interfaces.LLMProvider {
	if llm, ok := byFamily[types.HighQuality]; ok {
		return llm
	}
	for _, llm := range byFamily {
		return llm
	}
	return nil
}

func initWebSearch(cfg *config.Config) interfaces.WebSearchFallback {
	client := &http.Client{Timeout: cfg.Pipeline.Timeouts.WebFallback}
	return websearch.NewClient(cfg.WebSearch, client)
}

// initAsynqClient registers the feedback-persistence handler and then
// starts the asynq worker server. Order matters: common.InitAsyncq snapshots
// the registered handlers when it launches the worker, so the handler must
// be registered first.
func initAsynqClient(cfg *config.Config, store interfaces.CacheStore) (*asynq.Client, error) {
	cache.RegisterFeedbackHandler(store)
	if err := common.InitAsyncq(cfg); err != nil {
		return nil, fmt.Errorf("init asynq client: %w", err)
	}
	return common.GetAsyncqClient(), nil
}

// registerPipelineStages builds and registers every stage plugin against
// the EventManager. None of the constructed plugins are consumed directly
// by anything else in the container, so this runs as an Invoke rather than
// a chain of Provides.
func registerPipelineStages(
	events *pipeline.EventManager,
	cfg *config.Config,
	llmByFamily map[types.ModelFamily]interfaces.LLMProvider,
	embedder interfaces.EmbeddingProvider,
	index interfaces.VectorIndexClient,
	reranker interfaces.Reranker,
	store interfaces.CacheStore,
	webSearch interfaces.WebSearchFallback,
) {
	detector := primaryLLM(llmByFamily)

	pipeline.NewConversationParser(events, detector, cfg.Pipeline)
	pipeline.NewQueryClassifier(events, detector, cfg.Pipeline.Prompts)
	pipeline.NewMultilingualRouter(events, detector, cfg.Pipeline)
	pipeline.NewCacheLookup(events, store)
	pipeline.NewTranslateToEN(events, llmByFamily)
	pipeline.NewRetriever(events, embedder, index, reranker, cfg.Pipeline)
	pipeline.NewResponseGenerator(events, llmByFamily, cfg.Pipeline.Prompts, cfg.Pipeline)
	pipeline.NewFaithfulnessGuard(events, llmByFamily, embedder, cfg.Pipeline.Prompts, cfg.Pipeline.FaithfulnessThreshold)
	pipeline.NewWebFallback(events, webSearch)
	pipeline.NewTranslateBack(events, llmByFamily)
	pipeline.NewCacheWrite(events, store, cfg.Pipeline.FaithfulnessThreshold)
}

func newOrchestrator(
	events *pipeline.EventManager,
	llmByFamily map[types.ModelFamily]interfaces.LLMProvider,
	webSearch interfaces.WebSearchFallback,
	cfg *config.Config,
) *pipeline.PipelineOrchestrator {
	return pipeline.New(events, llmByFamily, webSearch, cfg.Pipeline)
}
