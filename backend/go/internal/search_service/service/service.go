// Package service assembles the question answering pipeline from configuration.
package service

import (
	"Neurologix/backend/go/internal/config"
	"Neurologix/backend/go/internal/database/kafka"
	"Neurologix/backend/go/internal/database/milvus"
	"Neurologix/backend/go/internal/database/mysql"
	redisdb "Neurologix/backend/go/internal/database/redis"
	"Neurologix/backend/go/internal/embedding"
	"Neurologix/backend/go/internal/llm"
	"Neurologix/backend/go/internal/search_service/api"
	"Neurologix/backend/go/internal/search_service/audit"
	"Neurologix/backend/go/internal/search_service/rag/catalog"
	"Neurologix/backend/go/internal/search_service/rag/dal"
	"Neurologix/backend/go/internal/search_service/rag/embeddings"
	"Neurologix/backend/go/internal/search_service/rag/intent"
	"Neurologix/backend/go/internal/search_service/rag/interfaces"
	"Neurologix/backend/go/internal/search_service/rag/llms"
	"Neurologix/backend/go/internal/search_service/rag/pipeline"
	"Neurologix/backend/go/internal/search_service/rag/querybuilder"
	"Neurologix/backend/go/internal/search_service/rag/sampledata"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"Neurologix/backend/go/internal/search_service/rag/semantic"
	"Neurologix/backend/go/internal/search_service/rag/storages/docstore"
	"Neurologix/backend/go/internal/search_service/rag/storages/structstore"
	"Neurologix/backend/go/internal/search_service/rag/storages/vectorstore"
	"Neurologix/backend/go/internal/search_service/rag/synthesis"
	"Neurologix/backend/go/pkg/circuitbreaker"
	"Neurologix/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const (
	storeMemory = "memory"
	storeMySQL  = "mysql"
	storeMilvus = "milvus"

	providerTemplate = "template"
	providerHashing  = "hashing"
)

// Service owns the orchestrator and every connection it was built on.
type Service struct {
	Orchestrator *pipeline.Orchestrator
	Semantic     *semantic.Adapter
	Catalog      *catalog.Catalog

	// Indexer writes documents into the same stores the Semantic adapter reads.
	Indexer *pipeline.IndexingPipeline

	checks   []api.HealthChecker
	closers  []func() error
	flushers []func(ctx context.Context) error
	log      *logger.Logger
}

// deps carries the shared connections while the service is being assembled.
type deps struct {
	cfg *config.AppConfig
	log *logger.Logger
	svc *Service

	db *gorm.DB
}

func (d *deps) mysqlDB() (*gorm.DB, error) {
	if d.db != nil {
		return d.db, nil
	}
	db, err := mysql.GetDB(&d.cfg.Databases.MySQL)
	if err != nil {
		return nil, schemaConfigError("failed to connect to MySQL", err)
	}
	d.db = db
	d.svc.checks = append(d.svc.checks, api.HealthChecker{Name: "mysql", Check: mysql.HealthCheck})
	d.svc.closers = append(d.svc.closers, mysql.Close)
	return db, nil
}

// New builds the pipeline described by cfg and verifies that the embedding
// dimension matches the vector store before returning.
func New(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) (*Service, error) {
	if log == nil {
		log = logger.Discard()
	}
	svc := &Service{Catalog: catalog.Default(), log: log}
	d := &deps{cfg: cfg, log: log, svc: svc}
	pcfg := cfg.Pipeline.WithDefaults()

	fail := func(err error) (*Service, error) {
		_ = svc.Close()
		return nil, err
	}

	structured, err := d.structuredStore(pcfg)
	if err != nil {
		return fail(err)
	}
	docs, vectors, err := d.vectorStores(ctx, pcfg)
	if err != nil {
		return fail(err)
	}
	embedder, err := d.embedder(ctx)
	if err != nil {
		return fail(err)
	}
	gen, err := d.generator(ctx)
	if err != nil {
		return fail(err)
	}
	sink, err := d.auditSink()
	if err != nil {
		return fail(err)
	}

	transform, err := semantic.NewScoreTransform(pcfg.ScoreTransform, pcfg.ScoreScale)
	if err != nil {
		return fail(schemaConfigError("invalid pipeline.scoreTransform", err))
	}

	classifierOpts := []intent.Option{
		intent.WithConfidenceThreshold(pcfg.ConfidenceThreshold),
		intent.WithTeamAliases(pcfg.TeamAliases),
		intent.WithLogger(log),
	}
	if pcfg.LLMExtraction && cfg.LLM.Provider != providerTemplate {
		classifierOpts = append(classifierOpts, intent.WithExtractor(intent.NewLLMExtractor(gen, svc.Catalog)))
	}
	classifier := intent.NewClassifier(svc.Catalog, classifierOpts...)

	builder := querybuilder.NewBuilder(svc.Catalog, structured,
		querybuilder.WithRowLimit(pcfg.RowLimit),
		querybuilder.WithLogger(log),
	)

	svc.Semantic = semantic.NewAdapter(embedder, vectors,
		semantic.WithDocStore(docs),
		semantic.WithScoreTransform(transform),
		semantic.WithCollection(collectionName(cfg, pcfg)),
		semantic.WithRetryBackoff(pcfg.RetryBackoff),
		semantic.WithLogger(log),
	)
	svc.Indexer = pipeline.NewIndexingPipeline(embedder, docs, vectors, 0, log)

	if err := svc.Semantic.VerifyDimension(ctx); err != nil {
		return fail(err)
	}

	if pcfg.VectorStore == storeMemory {
		if err := svc.Indexer.Run(ctx, sampledata.Documents(), nil); err != nil {
			return fail(fmt.Errorf("failed to index sample documents: %w", err))
		}
		log.Info(fmt.Sprintf("Indexed %d sample documents into the in-memory vector store", len(sampledata.Documents())))
	}

	svc.Orchestrator = pipeline.NewOrchestrator(classifier, builder, svc.Semantic,
		synthesis.New(gen, synthesis.WithLogger(log)),
		pipeline.WithConfig(pipeline.Config{
			RequestTimeout:    pcfg.RequestTimeout,
			StructuredTimeout: pcfg.StructuredTimeout,
			SemanticTimeout:   pcfg.SemanticTimeout,
			TopK:              pcfg.TopK,
			MaxEvidence:       pcfg.MaxEvidence,
		}),
		pipeline.WithAuditSink(sink),
		pipeline.WithLogger(log),
	)
	return svc, nil
}

func (d *deps) structuredStore(pcfg config.PipelineConfig) (interfaces.StructuredStore, error) {
	switch pcfg.StructuredStore {
	case storeMemory:
		d.log.Warn("Using the in-memory structured store with sample assessments")
		return structstore.NewInMemoryStore(sampledata.Rows()...), nil
	case storeMySQL:
		db, err := d.mysqlDB()
		if err != nil {
			return nil, err
		}
		return dal.NewAssessmentDAL(db, d.svc.Catalog), nil
	}
	return nil, schemaConfigError(fmt.Sprintf("unknown structured store %q", pcfg.StructuredStore), nil)
}

func (d *deps) vectorStores(ctx context.Context, pcfg config.PipelineConfig) (interfaces.DocStore, interfaces.VectorStore, error) {
	switch pcfg.VectorStore {
	case storeMemory:
		return docstore.NewInMemoryDocStore(), vectorstore.NewInMemoryStore(d.cfg.Embedding.Dimension), nil
	case storeMilvus:
		db, err := d.mysqlDB()
		if err != nil {
			return nil, nil, err
		}
		client, err := milvus.GetClient(ctx, &d.cfg.Databases.Milvus)
		if err != nil {
			return nil, nil, schemaConfigError("failed to connect to Milvus", err)
		}
		d.svc.checks = append(d.svc.checks, api.HealthChecker{Name: "milvus", Check: client.HealthCheck})
		d.svc.closers = append(d.svc.closers, func() error { client.Close(); return nil })
		d.svc.flushers = append(d.svc.flushers, client.FlushCollection)
		if err := client.EnsureCollection(ctx); err != nil {
			return nil, nil, schemaConfigError("failed to prepare Milvus collection", err)
		}
		store, err := vectorstore.NewMilvusStore(client, d.log)
		if err != nil {
			return nil, nil, schemaConfigError("failed to create Milvus store", err)
		}
		return dal.NewDocumentDAL(db), store, nil
	}
	return nil, nil, schemaConfigError(fmt.Sprintf("unknown vector store %q", pcfg.VectorStore), nil)
}

// embedder returns the query embedding model behind a two-level cache.
// Redis is optional; without it only the in-process cache is used.
func (d *deps) embedder(ctx context.Context) (interfaces.EmbeddingModel, error) {
	ecfg := d.cfg.Embedding
	var model interfaces.EmbeddingModel
	namespace := ecfg.Provider
	if ecfg.Provider == providerHashing {
		model = embeddings.NewHashingModel(ecfg.Dimension)
		namespace = fmt.Sprintf("%s:%d", providerHashing, ecfg.Dimension)
	} else {
		client, err := embedding.NewEmdModel(ctx, ecfg)
		if err != nil {
			return nil, schemaConfigError("failed to create embedding client", err)
		}
		model = embeddings.NewProviderModel(client)
		namespace = ecfg.Provider + ":" + embeddingModelName(ecfg)
	}

	opts := []embeddings.CacheOption{embeddings.WithTTL(ecfg.CacheTTL), embeddings.WithCacheLogger(d.log)}
	if d.cfg.Databases.Redis.Address != "" {
		rdb, err := redisdb.GetClient(ctx, &d.cfg.Databases.Redis)
		if err != nil {
			d.log.Warn(fmt.Sprintf("Redis unavailable, embedding cache stays in-process: %v", err))
		} else {
			opts = append(opts, embeddings.WithRedis(rdb))
			d.svc.checks = append(d.svc.checks, api.HealthChecker{Name: "redis", Check: redisdb.HealthCheck})
			d.svc.closers = append(d.svc.closers, redisdb.Close)
		}
	}
	return embeddings.NewCachedModel(model, namespace, opts...)
}

func embeddingModelName(ecfg config.EmbeddingConfig) string {
	switch ecfg.Provider {
	case "gemini", "google":
		return ecfg.Gemini.Model
	case "openai":
		return ecfg.OpenAI.Model
	case "ollama":
		return ecfg.Ollama.Model
	}
	return ""
}

func (d *deps) generator(ctx context.Context) (interfaces.LLM, error) {
	lcfg := d.cfg.LLM
	if lcfg.Provider == providerTemplate {
		d.log.Info("Using the deterministic template generator for answers")
		return synthesis.NewTemplateGenerator(), nil
	}
	client, err := llm.NewClient(ctx, lcfg)
	if err != nil {
		return nil, schemaConfigError("failed to create LLM client", err)
	}
	var opts []llms.AdapterOption
	if lcfg.CircuitBreaker.Enabled {
		timeout, err := time.ParseDuration(lcfg.CircuitBreaker.Timeout)
		if err != nil {
			return nil, schemaConfigError("invalid llm.circuitBreaker.timeout", err)
		}
		opts = append(opts, llms.WithBreaker(circuitbreaker.New(
			lcfg.CircuitBreaker.FailureThreshold, lcfg.CircuitBreaker.SuccessThreshold, timeout,
			circuitbreaker.WithStateChange(func(from, to circuitbreaker.State) {
				d.log.Warn(fmt.Sprintf("LLM circuit breaker %s -> %s", from, to))
			}),
		)))
	}
	return llms.NewProviderAdapter(client, opts...), nil
}

func (d *deps) auditSink() (interfaces.AuditSink, error) {
	kcfg := d.cfg.Databases.Kafka
	if kcfg.AuditTopic == "" || len(kcfg.Brokers) == 0 {
		return audit.NewLogSink(d.log), nil
	}
	client, err := kafka.GetClient(&kcfg)
	if err != nil {
		return nil, schemaConfigError("failed to connect to Kafka", err)
	}
	publisher := audit.NewKafkaPublisher(client)
	d.svc.checks = append(d.svc.checks, api.HealthChecker{Name: "kafka", Check: client.HealthCheck})
	d.svc.closers = append(d.svc.closers, publisher.Close, client.Close)
	return publisher, nil
}

func schemaConfigError(message string, err error) error {
	return schema.NewError(schema.ConfigurationError, message, err)
}

func collectionName(cfg *config.AppConfig, pcfg config.PipelineConfig) string {
	if pcfg.VectorStore == storeMilvus && cfg.Databases.Milvus.Schema.CollectionName != "" {
		return cfg.Databases.Milvus.Schema.CollectionName
	}
	return semantic.DefaultCollection
}

// HealthChecks returns a checker per external dependency in use.
func (s *Service) HealthChecks() []api.HealthChecker {
	return s.checks
}

// Flush makes indexed vectors durable and searchable. Only Milvus needs it.
func (s *Service) Flush(ctx context.Context) error {
	for _, flush := range s.flushers {
		if err := flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases connections in reverse order of creation.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
