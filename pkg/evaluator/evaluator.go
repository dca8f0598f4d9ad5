// Package evaluator is the public entry point of the deck evaluator. It wires
// discovery, extraction, the analysis stages and the batch processor from a
// single configuration.
package evaluator

import (
	"context"
	"errors"
	"net/http"

	"github.com/spherical/deck-evaluator/internal/api"
	"github.com/spherical/deck-evaluator/internal/batch"
	"github.com/spherical/deck-evaluator/internal/config"
	"github.com/spherical/deck-evaluator/internal/domain"
	"github.com/spherical/deck-evaluator/internal/evaluate"
	"github.com/spherical/deck-evaluator/internal/extract"
	"github.com/spherical/deck-evaluator/internal/llm"
	"github.com/spherical/deck-evaluator/internal/loader"
	"github.com/spherical/deck-evaluator/internal/notify"
	"github.com/spherical/deck-evaluator/internal/observability"
	"github.com/spherical/deck-evaluator/internal/pdf"
	"github.com/spherical/deck-evaluator/internal/workflow"
)

// Re-exported result types
type (
	Config             = config.Config
	DocumentDescriptor = domain.DocumentDescriptor
	FinalScoreCard     = domain.FinalScoreCard
	ErrorRecord        = domain.ErrorRecord
	BatchResult        = domain.BatchResult
	BatchSummary       = domain.BatchSummary
	Event              = notify.Event
	EventType          = notify.EventType
	Publisher          = notify.Publisher
	PublisherFunc      = notify.PublisherFunc
	Logger             = observability.Logger
)

// Event type constants
const (
	EventBatchStarted      = notify.EventBatchStarted
	EventDocumentStarted   = notify.EventDocumentStarted
	EventDocumentCompleted = notify.EventDocumentCompleted
	EventDocumentFailed    = notify.EventDocumentFailed
	EventBatchCompleted    = notify.EventBatchCompleted
)

// Client evaluates batches of pitch decks.
type Client struct {
	cfg       *config.Config
	logger    *observability.Logger
	loader    *loader.Loader
	processor *batch.Processor
	redis     *notify.RedisPublisher
}

// Option customizes client construction.
type Option func(*options)

type options struct {
	logger     *observability.Logger
	subscriber notify.Publisher
	vision     domain.VisionAnalyzer
	text       domain.TextAnalyzer
	opener     pdf.Opener
}

// WithLogger sets the logger used by every component.
func WithLogger(logger *observability.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithSubscriber receives every lifecycle event in addition to the
// configured publisher.
func WithSubscriber(p notify.Publisher) Option {
	return func(o *options) { o.subscriber = p }
}

// WithAnalyzers replaces the model-backed capabilities.
func WithAnalyzers(vision domain.VisionAnalyzer, text domain.TextAnalyzer) Option {
	return func(o *options) {
		o.vision = vision
		o.text = text
	}
}

// WithOpener replaces the PDF backend.
func WithOpener(opener pdf.Opener) Option {
	return func(o *options) { o.opener = opener }
}

// NewClient loads configuration from .env and the environment and builds a client.
func NewClient(opts ...Option) (*Client, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, domain.ConfigError("Failed to load configuration", err)
	}
	return NewClientWithConfig(cfg, opts...)
}

// NewClientWithConfig builds a client from an explicit configuration.
func NewClientWithConfig(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, domain.ConfigError("configuration is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, domain.ConfigError("invalid configuration", err)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{
			Level:       cfg.Observability.LogLevel,
			Format:      cfg.Observability.LogFormat,
			ServiceName: cfg.Observability.ServiceName,
		})
	}

	if o.vision == nil || o.text == nil {
		apiKey, err := cfg.RequireAPIKey()
		if err != nil {
			return nil, domain.ConfigError("analysis capability not configured", err)
		}

		// One account, one budget: both models share the limiter.
		limiter := llm.NewLimiter(cfg.Analysis.RequestsPerSecond, cfg.Analysis.Burst)
		retry := llm.DefaultRetryConfig()
		retry.MaxRetries = cfg.Analysis.MaxRetries

		if o.vision == nil {
			o.vision = llm.NewClient(llm.Config{
				APIKey:  apiKey,
				BaseURL: cfg.Analysis.BaseURL,
				Model:   cfg.Analysis.VisionModel,
				Limiter: limiter,
				Retry:   retry,
			}, logger)
		}
		if o.text == nil {
			o.text = llm.NewClient(llm.Config{
				APIKey:  apiKey,
				BaseURL: cfg.Analysis.BaseURL,
				Model:   cfg.Analysis.TextModel,
				Limiter: limiter,
				Retry:   retry,
			}, logger)
		}
	}

	if o.opener == nil {
		o.opener = pdf.NewFitzOpener()
	}

	strategy, err := pdf.NewAssetStrategy(cfg.Extract.Strategy, cfg.Extract.JPEGQuality)
	if err != nil {
		return nil, domain.ConfigError("invalid extract strategy", err)
	}

	stageOpts := evaluate.Options{
		MaxDesignAssets: cfg.Analysis.MaxDesignAssets,
		CallTimeout:     cfg.Analysis.CallTimeout,
	}
	graph := workflow.NewGraph(workflow.Stages{
		Extractor: extract.NewService(o.opener, extract.Config{
			MaxPages: cfg.Extract.MaxPages,
			DPI:      cfg.Extract.DPI,
			Strategy: strategy,
		}, logger),
		Design:  evaluate.NewDesignStage(o.vision, stageOpts, logger),
		Content: evaluate.NewContentStage(o.text, stageOpts, logger),
		Scorer:  evaluate.NewScoreStage(o.text, stageOpts, logger),
	}, workflow.WithParallelStages(cfg.Batch.ParallelStages), workflow.WithLogger(logger))

	c := &Client{
		cfg:    cfg,
		logger: logger,
		loader: loader.New(cfg.Source.Dir, cfg.Source.Extension, logger),
	}

	publishers := notify.Multi{notify.NewLogPublisher(logger)}
	if cfg.Notify.Driver == "redis" {
		c.redis, err = notify.NewRedisPublisher(notify.RedisConfig{
			Addr:     cfg.Notify.Redis.Addr,
			Password: cfg.Notify.Redis.Password,
			DB:       cfg.Notify.Redis.DB,
			Channel:  cfg.Notify.Redis.Channel,
			Prefix:   cfg.Notify.Redis.Prefix,
		})
		if err != nil {
			return nil, domain.ConfigError("Failed to connect event publisher", err)
		}
		publishers = append(publishers, c.redis)
	}
	if o.subscriber != nil {
		publishers = append(publishers, o.subscriber)
	}

	c.processor = batch.NewProcessor(graph, batch.Config{
		Concurrency:     cfg.Batch.Concurrency,
		ScratchRoot:     cfg.Scratch.Root,
		DocumentTimeout: cfg.Batch.DocumentTimeout,
	},
		batch.WithDiscoverer(c.loader),
		batch.WithPublisher(publishers),
		batch.WithLogger(logger),
	)

	return c, nil
}

// Discover lists the decks in the configured source directory.
func (c *Client) Discover(ctx context.Context) ([]DocumentDescriptor, error) {
	return c.loader.Discover(ctx)
}

// Source returns the configured source directory.
func (c *Client) Source() string {
	return c.loader.Source()
}

// Evaluate discovers and evaluates every deck in the source directory.
func (c *Client) Evaluate(ctx context.Context) (*BatchSummary, error) {
	return c.processor.Run(ctx)
}

// EvaluateFiles evaluates the given paths as one batch. Unreadable paths
// come back as error records, not as an error.
func (c *Client) EvaluateFiles(ctx context.Context, paths []string) (*BatchSummary, error) {
	docs := make([]DocumentDescriptor, len(paths))
	for i, p := range paths {
		docs[i] = loader.Describe(p)
	}
	return c.processor.ProcessQueue(ctx, docs)
}

// EvaluateDocuments evaluates already discovered descriptors as one batch.
func (c *Client) EvaluateDocuments(ctx context.Context, docs []DocumentDescriptor) (*BatchSummary, error) {
	return c.processor.ProcessQueue(ctx, docs)
}

// Handler returns the HTTP API backed by this client.
func (c *Client) Handler() http.Handler {
	return api.NewRouter(c.logger,
		api.NewEvaluationHandler(c.logger, c.loader, c.processor),
		api.RouterConfig{RequestTimeout: c.cfg.Server.RequestTimeout},
	)
}

// Config returns the configuration the client was built with.
func (c *Client) Config() *Config {
	return c.cfg
}

// Logger returns the client logger.
func (c *Client) Logger() *Logger {
	return c.logger
}

// Close releases the event publisher connection.
func (c *Client) Close() error {
	var errs []error
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}
	return errors.Join(errs...)
}
