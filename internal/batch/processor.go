// Package batch evaluates many decks concurrently under a bounded gate.
// Each document runs in isolation: its failure, or panic, becomes an error
// record without affecting its siblings, and its scratch directory is removed
// whatever the outcome.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/spherical/deck-evaluator/internal/domain"
	"github.com/spherical/deck-evaluator/internal/notify"
	"github.com/spherical/deck-evaluator/internal/observability"
	"github.com/spherical/deck-evaluator/internal/workflow"
)

// DefaultConcurrency is the number of documents evaluated at once.
const DefaultConcurrency = 3

// Runner executes the per-document graph.
type Runner interface {
	Run(ctx context.Context, state domain.EvaluationState) workflow.Outcome
}

// Discoverer lists the documents of one batch.
type Discoverer interface {
	Discover(ctx context.Context) ([]domain.DocumentDescriptor, error)
}

// Config holds processor settings
type Config struct {
	Concurrency     int
	ScratchRoot     string
	DocumentTimeout time.Duration // 0 disables
}

// Processor runs batches of documents through a Runner.
type Processor struct {
	runner     Runner
	discoverer Discoverer
	publisher  notify.Publisher
	config     Config
	logger     *observability.Logger
	newBatchID func() string
}

// Option configures a Processor
type Option func(*Processor)

// WithDiscoverer sets the document source used by Run.
func WithDiscoverer(d Discoverer) Option {
	return func(p *Processor) { p.discoverer = d }
}

// WithPublisher sets where lifecycle events go.
func WithPublisher(pub notify.Publisher) Option {
	return func(p *Processor) {
		if pub != nil {
			p.publisher = pub
		}
	}
}

// WithLogger sets the processor logger
func WithLogger(logger *observability.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProcessor creates a processor. Zero Config fields take defaults.
func NewProcessor(runner Runner, cfg Config, opts ...Option) *Processor {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.ScratchRoot == "" {
		cfg.ScratchRoot = "temp_images"
	}

	p := &Processor{
		runner:     runner,
		publisher:  notify.Nop,
		config:     cfg,
		logger:     observability.Nop(),
		newBatchID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithOperation("batch")
	return p
}

// Concurrency returns the admission gate size.
func (p *Processor) Concurrency() int {
	return p.config.Concurrency
}

// Run discovers the documents and processes them as one batch. An empty
// source yields an empty summary.
func (p *Processor) Run(ctx context.Context) (*domain.BatchSummary, error) {
	if p.discoverer == nil {
		return nil, domain.ConfigError("no document source configured", nil)
	}

	docs, err := p.discoverer.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover documents: %w", err)
	}

	return p.ProcessQueue(ctx, docs)
}

// ProcessQueue evaluates docs with at most Concurrency in flight and returns
// one result per input, in input order. Per-document failures never surface
// as an error here; the error return is reserved for batch setup failures.
func (p *Processor) ProcessQueue(ctx context.Context, docs []domain.DocumentDescriptor) (*domain.BatchSummary, error) {
	summary := &domain.BatchSummary{
		BatchID:   p.newBatchID(),
		Results:   make([]domain.BatchResult, len(docs)),
		StartedAt: time.Now(),
	}
	logger := p.logger.WithContext(ctx).With().Str("batch_id", summary.BatchID).Logger()

	if len(docs) == 0 {
		return summary, nil
	}

	batchDir := filepath.Join(p.config.ScratchRoot, summary.BatchID)
	if err := os.MkdirAll(batchDir, 0o755); err != nil {
		return nil, domain.FilesystemError("Failed to create batch scratch directory", err)
	}
	defer p.removeScratch(logger, batchDir)

	logger.Info().Int("documents", len(docs)).Int("concurrency", p.config.Concurrency).Msg("Batch started")
	p.publish(ctx, logger, notify.Event{Type: notify.EventBatchStarted, BatchID: summary.BatchID, Total: len(docs)})

	scratchDirs := scratchLayout(batchDir, docs)

	// Not derived from ctx: a failing document must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(p.config.Concurrency)

	for i, doc := range docs {
		g.Go(func() error {
			summary.Results[i] = p.processOne(ctx, logger, summary.BatchID, doc, scratchDirs[i])
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range summary.Results {
		if r.Succeeded() {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	summary.Duration = time.Since(summary.StartedAt)

	logger.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("Batch completed")
	p.publish(ctx, logger, notify.Event{
		Type:      notify.EventBatchCompleted,
		BatchID:   summary.BatchID,
		Total:     summary.Total(),
		Succeeded: summary.Succeeded,
		Failed:    summary.Failed,
		Duration:  summary.Duration,
	})

	return summary, nil
}

// processOne is the per-document isolation boundary.
func (p *Processor) processOne(ctx context.Context, logger *observability.Logger, batchID string, doc domain.DocumentDescriptor, scratchDir string) (result domain.BatchResult) {
	start := time.Now()
	logger = logger.WithDocument(doc.Identity)

	defer p.removeScratch(logger, scratchDir)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("stack", string(debug.Stack())).Msgf("Evaluation panicked: %v", r)
			result = domain.NewErrorResult(doc.Identity, fmt.Errorf("panic during evaluation: %v", r), time.Since(start))
		}

		event := notify.Event{BatchID: batchID, Identity: doc.Identity, Duration: result.Duration}
		if result.Succeeded() {
			event.Type = notify.EventDocumentCompleted
			event.Score = result.Score
		} else {
			event.Type = notify.EventDocumentFailed
			event.Error = result.Err.Error
		}
		p.publish(ctx, logger, event)
	}()

	p.publish(ctx, logger, notify.Event{Type: notify.EventDocumentStarted, BatchID: batchID, Identity: doc.Identity})

	if err := ctx.Err(); err != nil {
		return domain.NewErrorResult(doc.Identity, err, time.Since(start))
	}

	docCtx := ctx
	if p.config.DocumentTimeout > 0 {
		var cancel context.CancelFunc
		docCtx, cancel = context.WithTimeout(ctx, p.config.DocumentTimeout)
		defer cancel()
	}

	state := domain.NewEvaluationState(doc, scratchDir)
	outcome := p.runner.Run(docCtx, *state)

	if outcome.Phase != workflow.PhaseScored || outcome.Score == nil {
		err := outcome.Err
		if err == nil {
			err = fmt.Errorf("evaluation ended in phase %s without a score", outcome.Phase)
		}
		return domain.NewErrorResult(doc.Identity, err, time.Since(start))
	}

	return domain.NewSuccessResult(doc.Identity, outcome.Score, time.Since(start))
}

func (p *Processor) publish(ctx context.Context, logger *observability.Logger, event notify.Event) {
	event.Timestamp = time.Now()
	// Events are best effort and must outlive a canceled batch.
	if err := p.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		logger.Warn().Err(err).Str("event", string(event.Type)).Msg("Failed to publish event")
	}
}

func (p *Processor) removeScratch(logger *observability.Logger, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn().Err(domain.FilesystemError("Failed to remove scratch directory "+dir, err)).Msg("Scratch cleanup failed")
	}
}

// scratchLayout assigns <batchDir>/<identity> per document, suffixing
// repeated identities with their input index.
func scratchLayout(batchDir string, docs []domain.DocumentDescriptor) []string {
	dirs := make([]string, len(docs))
	seen := make(map[string]bool, len(docs))
	for i, doc := range docs {
		name := doc.Identity
		if name == "" || name == "." || name == ".." {
			name = fmt.Sprintf("document_%d", i)
		}
		if seen[name] {
			name = fmt.Sprintf("%s-%d", name, i)
		}
		seen[name] = true
		dirs[i] = filepath.Join(batchDir, name)
	}
	return dirs
}
