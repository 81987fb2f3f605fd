// Command memquery runs the retrieval core's event consumer: it wires the
// vector store, embedder registry, reranker router, batch queue, and
// indexer together and drains the ingest topic until signaled to stop.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	kafka "github.com/segmentio/kafka-go"

	"github.com/vectorlane/memquery/internal/config"
	"github.com/vectorlane/memquery/internal/consumer"
	"github.com/vectorlane/memquery/internal/document"
	"github.com/vectorlane/memquery/internal/embedder"
	"github.com/vectorlane/memquery/internal/indexer"
	"github.com/vectorlane/memquery/internal/llmprovider"
	"github.com/vectorlane/memquery/internal/logging"
	"github.com/vectorlane/memquery/internal/queue"
	"github.com/vectorlane/memquery/internal/ratelimit"
	"github.com/vectorlane/memquery/internal/rerank"
	"github.com/vectorlane/memquery/internal/statusbus"
	"github.com/vectorlane/memquery/internal/store"
	"github.com/vectorlane/memquery/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("memquery")
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("MEMQUERY_CONFIG"), "")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var extraLogWriters []io.Writer
	shutdownTelemetry, err := telemetry.Init(context.Background(), cfg.Obs)
	switch {
	case err == nil:
		extraLogWriters = append(extraLogWriters, telemetry.NewOTelWriter(cfg.Obs.ServiceName))
		defer func() {
			if serr := shutdownTelemetry(context.Background()); serr != nil {
				log.Error().Err(serr).Msg("memquery: telemetry shutdown failed")
			}
		}()
	case err == telemetry.ErrOTLPNotConfigured:
		// telemetry export disabled; logging still works without it
	default:
		return fmt.Errorf("init telemetry: %w", err)
	}
	logging.Init(cfg.LogPath, cfg.LogLevel, extraLogWriters...)

	vectorStore, err := store.NewQdrantStore(cfg.Store.Addr)
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer vectorStore.Close()

	httpClient := telemetry.NewHTTPClient(nil)

	denseText := embedder.NewHTTPDense("text_dense", 768, cfg.Embedder.TextDenseURL, "text-embed", cfg.Embedder.APIKey, "", httpClient)
	sparse := embedder.NewHTTPSparse("sparse", cfg.Embedder.SparseURL, "sparse-embed", cfg.Embedder.APIKey, "", httpClient)

	llmProvider, err := llmprovider.New(cfg.LLM)
	if err != nil {
		return fmt.Errorf("init llm provider: %w", err)
	}

	llmLimiter := ratelimit.New(time.Duration(cfg.RateLimit.WindowSeconds)*time.Second, cfg.RateLimit.MaxRequests, cfg.RateLimit.MaxCostCents)

	tiers := map[rerank.Tier]rerank.TierRunner{
		rerank.TierLLM: rerank.LLMTierRunner{Provider: llmProvider, MaxTokens: 512},
	}
	if cfg.Reranker.FastURL != "" {
		tiers[rerank.TierFast] = rerank.HTTPTierRunner{Client: httpClient, URL: cfg.Reranker.FastURL}
	}
	if cfg.Reranker.AccurateURL != "" {
		tiers[rerank.TierAccurate] = rerank.HTTPTierRunner{Client: httpClient, URL: cfg.Reranker.AccurateURL}
	}
	if cfg.Reranker.CodeURL != "" {
		tiers[rerank.TierCode] = rerank.HTTPTierRunner{Client: httpClient, URL: cfg.Reranker.CodeURL}
	}
	if cfg.Reranker.ColBERTURL != "" {
		tiers[rerank.TierColBERT] = rerank.HTTPTierRunner{Client: httpClient, URL: cfg.Reranker.ColBERTURL}
	}
	// The reranker router serves query-time retrieval; this binary only
	// drains the ingest topic, but it's constructed here so a future
	// query-serving entrypoint shares the same wiring.
	_ = rerank.NewRouter(tiers,
		rerank.WithTimeout(time.Duration(cfg.Reranker.TimeoutMillis)*time.Millisecond),
		rerank.WithLLMLimiter(llmLimiter),
		rerank.WithLLMCostRate(cfg.LLM.CostPerKTokensIn),
	)

	ix := indexer.New(vectorStore, denseText, sparse, cfg.Store.ChunksCollection, "text_dense", "text_sparse",
		indexer.WithLogger(log.Logger))

	q := queue.New(
		queue.Config{BatchSize: cfg.BatchMaxSize, FlushIntervalMS: cfg.BatchMaxDelayMillis, MaxQueueSize: cfg.BatchCapacity},
		func(ctx context.Context, batch []document.Document) error {
			n, err := ix.Index(ctx, batch)
			log.Info().Int("indexed", n).Int("requested", len(batch)).Err(err).Msg("memquery: batch flushed")
			return err
		},
		func(err error) { log.Error().Err(err).Msg("memquery: queue flush error") },
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID,
		Topic:   cfg.Kafka.Topic,
	})
	statusWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.StatusTopic,
		Balancer: &kafka.LeastBytes{},
	}
	defer statusWriter.Close()

	bus := statusbus.New(statusWriter, cfg.Kafka.StatusTopic, cfg.Kafka.GroupID, cfg.Obs.ServiceName, statusbus.WithLogger(log.Logger))

	c := consumer.New(
		consumer.Config{HeartbeatInterval: time.Duration(cfg.HeartbeatIntervalMS) * time.Millisecond},
		reader, q, bus,
		consumer.WithLogger(log.Logger),
	)
	c.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("memquery: shutting down")
	c.Stop(context.Background())
	q.Stop(context.Background())
	return nil
}
