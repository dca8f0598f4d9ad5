package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/deck-evaluator/internal/domain"
	"github.com/spherical/deck-evaluator/internal/notify"
	"github.com/spherical/deck-evaluator/internal/workflow"
)

// fakeRunner scores every document except those named in fail or explode.
// It writes an asset into the scratch dir so cleanup can be checked.
type fakeRunner struct {
	fail    map[string]bool
	explode map[string]bool
	delay   time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	mu          sync.Mutex
	scratchDirs []string
}

func (r *fakeRunner) Run(ctx context.Context, state domain.EvaluationState) workflow.Outcome {
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		cur := r.maxInFlight.Load()
		if n <= cur || r.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	r.mu.Lock()
	r.scratchDirs = append(r.scratchDirs, state.ScratchDir)
	r.mu.Unlock()

	if err := os.MkdirAll(state.ScratchDir, 0o755); err != nil {
		return workflow.Outcome{Phase: workflow.PhaseFailed, Err: err}
	}
	if err := os.WriteFile(filepath.Join(state.ScratchDir, "slide_0.png"), []byte("png"), 0o644); err != nil {
		return workflow.Outcome{Phase: workflow.PhaseFailed, Err: err}
	}

	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return workflow.Outcome{Phase: workflow.PhaseFailed, Err: ctx.Err()}
		}
	}

	if r.explode[state.Identity] {
		panic("renderer crashed")
	}
	if r.fail[state.Identity] {
		return workflow.Outcome{
			Phase:       workflow.PhaseFailed,
			Err:         domain.DocumentParseError("cannot open "+state.SourcePath, errors.New("format error")),
			FailedStage: workflow.StageExtract,
		}
	}
	return workflow.Outcome{Phase: workflow.PhaseScored, Score: card(state.Identity)}
}

func card(identity string) *domain.FinalScoreCard {
	return &domain.FinalScoreCard{TeamName: identity, PPTQualityScore: 10, ContentQualityScore: 11, Reasoning: "ok"}
}

func docs(names ...string) []domain.DocumentDescriptor {
	out := make([]domain.DocumentDescriptor, len(names))
	for i, n := range names {
		out[i] = domain.DocumentDescriptor{ID: "local_" + n, Identity: n, Path: n + ".pdf", Name: n + ".pdf"}
	}
	return out
}

func newProcessor(t *testing.T, runner Runner, concurrency int, opts ...Option) (*Processor, string) {
	t.Helper()
	root := t.TempDir()
	p := NewProcessor(runner, Config{Concurrency: concurrency, ScratchRoot: root}, opts...)
	p.newBatchID = func() string { return "batch-1" }
	return p, root
}

var ignoreDuration = cmpopts.IgnoreFields(domain.BatchResult{}, "Duration")

func TestProcessQueue_IsolatesFailures(t *testing.T) {
	runner := &fakeRunner{fail: map[string]bool{"beta": true}}
	p, _ := newProcessor(t, runner, 3)

	summary, err := p.ProcessQueue(context.Background(), docs("alpha", "beta", "gamma"))
	require.NoError(t, err)

	want := []domain.BatchResult{
		{Identity: "alpha", Score: card("alpha")},
		{Identity: "beta", Err: &domain.ErrorRecord{Identity: "beta", Error: "[document_parse] cannot open beta.pdf: format error"}},
		{Identity: "gamma", Score: card("gamma")},
	}
	if diff := cmp.Diff(want, summary.Results, ignoreDuration); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, "batch-1", summary.BatchID)
}

func TestProcessQueue_PreservesOrder(t *testing.T) {
	names := make([]string, 25)
	for i := range names {
		names[i] = fmt.Sprintf("team%02d", i)
	}
	runner := &fakeRunner{delay: time.Millisecond}
	p, _ := newProcessor(t, runner, 4)

	summary, err := p.ProcessQueue(context.Background(), docs(names...))
	require.NoError(t, err)

	require.Len(t, summary.Results, len(names))
	for i, r := range summary.Results {
		assert.Equal(t, names[i], r.Identity)
		assert.Equal(t, names[i], r.Score.TeamName)
	}
}

func TestProcessQueue_RespectsConcurrencyLimit(t *testing.T) {
	for _, limit := range []int{1, 3} {
		runner := &fakeRunner{delay: 20 * time.Millisecond}
		p, _ := newProcessor(t, runner, limit)

		_, err := p.ProcessQueue(context.Background(), docs("a", "b", "c", "d", "e", "f", "g"))
		require.NoError(t, err)

		assert.LessOrEqual(t, runner.maxInFlight.Load(), int32(limit))
		assert.Equal(t, int32(limit), runner.maxInFlight.Load(), "gate should fill up")
	}
}

func TestProcessQueue_RemovesScratchDirs(t *testing.T) {
	runner := &fakeRunner{fail: map[string]bool{"beta": true}}
	p, root := newProcessor(t, runner, 2)

	_, err := p.ProcessQueue(context.Background(), docs("alpha", "beta"))
	require.NoError(t, err)

	require.Len(t, runner.scratchDirs, 2)
	for _, dir := range runner.scratchDirs {
		assert.NoDirExists(t, dir)
	}
	assert.NoDirExists(t, filepath.Join(root, "batch-1"))
	assert.DirExists(t, root)
}

func TestProcessQueue_ScratchLayout(t *testing.T) {
	runner := &fakeRunner{}
	p, root := newProcessor(t, runner, 1)

	_, err := p.ProcessQueue(context.Background(), docs("alpha"))
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(root, "batch-1", "alpha")}, runner.scratchDirs)
}

func TestProcessQueue_PanicBecomesErrorRecord(t *testing.T) {
	runner := &fakeRunner{explode: map[string]bool{"beta": true}}
	p, _ := newProcessor(t, runner, 3)

	summary, err := p.ProcessQueue(context.Background(), docs("alpha", "beta", "gamma"))
	require.NoError(t, err)

	assert.True(t, summary.Results[0].Succeeded())
	require.NotNil(t, summary.Results[1].Err)
	assert.Contains(t, summary.Results[1].Err.Error, "renderer crashed")
	assert.True(t, summary.Results[2].Succeeded())
	assert.NoDirExists(t, runner.scratchDirs[0])
}

func TestProcessQueue_EmptyInput(t *testing.T) {
	p, root := newProcessor(t, &fakeRunner{}, 3)

	summary, err := p.ProcessQueue(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, summary.Results)
	assert.NoDirExists(t, filepath.Join(root, "batch-1"))
}

func TestProcessQueue_DocumentTimeout(t *testing.T) {
	runner := &fakeRunner{delay: time.Second}
	p := NewProcessor(runner, Config{Concurrency: 2, ScratchRoot: t.TempDir(), DocumentTimeout: 10 * time.Millisecond})

	summary, err := p.ProcessQueue(context.Background(), docs("slow"))
	require.NoError(t, err)

	require.NotNil(t, summary.Results[0].Err)
	assert.Equal(t, context.DeadlineExceeded.Error(), summary.Results[0].Err.Error)
}

func TestProcessQueue_CanceledBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, _ := newProcessor(t, &fakeRunner{}, 2)
	summary, err := p.ProcessQueue(ctx, docs("a", "b"))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Failed)
	for _, r := range summary.Results {
		assert.Equal(t, context.Canceled.Error(), r.Err.Error)
	}
}

func TestProcessQueue_DuplicateIdentities(t *testing.T) {
	runner := &fakeRunner{}
	p, root := newProcessor(t, runner, 1)

	summary, err := p.ProcessQueue(context.Background(), docs("alpha", "alpha"))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, []string{
		filepath.Join(root, "batch-1", "alpha"),
		filepath.Join(root, "batch-1", "alpha-1"),
	}, runner.scratchDirs)
}

func TestProcessQueue_PublishesLifecycle(t *testing.T) {
	var mu sync.Mutex
	counts := map[notify.EventType]int{}
	var last notify.Event
	pub := notify.PublisherFunc(func(_ context.Context, e notify.Event) error {
		mu.Lock()
		defer mu.Unlock()
		counts[e.Type]++
		last = e
		return errors.New("broker unavailable")
	})

	p, _ := newProcessor(t, &fakeRunner{fail: map[string]bool{"b": true}}, 2, WithPublisher(pub))
	summary, err := p.ProcessQueue(context.Background(), docs("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)

	assert.Equal(t, map[notify.EventType]int{
		notify.EventBatchStarted:      1,
		notify.EventDocumentStarted:   3,
		notify.EventDocumentCompleted: 2,
		notify.EventDocumentFailed:    1,
		notify.EventBatchCompleted:    1,
	}, counts)
	assert.Equal(t, notify.EventBatchCompleted, last.Type)
	assert.Equal(t, 3, last.Total)
	assert.Equal(t, 1, last.Failed)
}

type staticDiscoverer struct {
	docs []domain.DocumentDescriptor
	err  error
}

func (d staticDiscoverer) Discover(context.Context) ([]domain.DocumentDescriptor, error) {
	return d.docs, d.err
}

func TestRun(t *testing.T) {
	p, _ := newProcessor(t, &fakeRunner{}, 2, WithDiscoverer(staticDiscoverer{docs: docs("a", "b")}))
	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total())

	p, _ = newProcessor(t, &fakeRunner{}, 2, WithDiscoverer(staticDiscoverer{err: domain.FilesystemError("denied", nil)}))
	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsErrorType(err, domain.ErrorTypeFilesystem))

	p, _ = newProcessor(t, &fakeRunner{}, 2)
	_, err = p.Run(context.Background())
	assert.True(t, domain.IsErrorType(err, domain.ErrorTypeConfig))
}

func TestNewProcessor_Defaults(t *testing.T) {
	p := NewProcessor(&fakeRunner{}, Config{})
	assert.Equal(t, DefaultConcurrency, p.Concurrency())
}

// crashingStages panics inside the Design stage for one identity. Used with a
// real graph so the panic happens on a middle-stage goroutine.
type crashingStages struct {
	crash string
}

func (s crashingStages) Extract(ctx context.Context, state domain.EvaluationState) (*domain.Extraction, error) {
	return &domain.Extraction{RawText: state.Identity + "\n", AssetPaths: []string{}, PageCount: 1}, nil
}

func (s crashingStages) EvaluateDesign(ctx context.Context, state domain.EvaluationState) (*domain.DesignReport, error) {
	if state.Identity == s.crash {
		panic("vision decoder crashed")
	}
	return &domain.DesignReport{QualitySummary: "clean", MissingFields: []string{}}, nil
}

func (s crashingStages) EvaluateContent(ctx context.Context, state domain.EvaluationState) (*domain.ContentReport, error) {
	return &domain.ContentReport{ContentQualitySummary: "clear"}, nil
}

func (s crashingStages) Score(ctx context.Context, identity string, design domain.DesignReport, content domain.ContentReport) (*domain.FinalScoreCard, error) {
	return card(identity), nil
}

func TestProcessQueue_ParallelStagePanicIsIsolated(t *testing.T) {
	stages := crashingStages{crash: "beta"}
	graph := workflow.NewGraph(workflow.Stages{Extractor: stages, Design: stages, Content: stages, Scorer: stages})
	p, root := newProcessor(t, graph, 3)

	var summary *domain.BatchSummary
	require.NotPanics(t, func() {
		var err error
		summary, err = p.ProcessQueue(t.Context(), docs("alpha", "beta", "gamma"))
		require.NoError(t, err)
	})

	want := []domain.BatchResult{
		{Identity: "alpha", Score: card("alpha")},
		{Identity: "beta", Err: &domain.ErrorRecord{Identity: "beta", Error: "[analysis] panic in design stage: vision decoder crashed"}},
		{Identity: "gamma", Score: card("gamma")},
	}
	if diff := cmp.Diff(want, summary.Results, ignoreDuration); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	assert.NoDirExists(t, filepath.Join(root, "batch-1"))
}
