package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/gates"
	"github.com/custodia-labs/patentgov/internal/core/identity"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
	"github.com/custodia-labs/patentgov/internal/core/ports/driving"
	"github.com/custodia-labs/patentgov/internal/logger"
)

const tracerName = "github.com/custodia-labs/patentgov/internal/core/services"

// Ensure BuildOrchestrator implements the interface.
var _ driving.BuildService = (*BuildOrchestrator)(nil)

// BuildOrchestrator stages, validates and promotes embedding builds.
type BuildOrchestrator struct {
	store    driven.CollectionStore
	embedder driven.EmbeddingService

	// Optional collaborators; nil disables them.
	metrics driven.BuildMetrics
	events  driven.BuildEventPublisher
	mirror  driven.CollectionMirror

	clock  func() time.Time
	tracer trace.Tracer
	locks  *versionLocks
}

// BuildOption configures a BuildOrchestrator.
type BuildOption func(*BuildOrchestrator)

// WithBuildMetrics records build metrics.
func WithBuildMetrics(m driven.BuildMetrics) BuildOption {
	return func(o *BuildOrchestrator) { o.metrics = m }
}

// WithBuildEvents publishes build lifecycle events.
func WithBuildEvents(p driven.BuildEventPublisher) BuildOption {
	return func(o *BuildOrchestrator) { o.events = p }
}

// WithCollectionMirror mirrors promoted collections.
func WithCollectionMirror(m driven.CollectionMirror) BuildOption {
	return func(o *BuildOrchestrator) { o.mirror = m }
}

// WithBuildClock sets the clock used for timestamps.
func WithBuildClock(clock func() time.Time) BuildOption {
	return func(o *BuildOrchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewBuildOrchestrator creates a build orchestrator.
func NewBuildOrchestrator(store driven.CollectionStore, embedder driven.EmbeddingService, opts ...BuildOption) *BuildOrchestrator {
	o := &BuildOrchestrator{
		store:    store,
		embedder: embedder,
		clock:    time.Now,
		tracer:   otel.Tracer(tracerName),
		locks:    newVersionLocks(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run carries the state of one build attempt.
type run struct {
	req      driving.BuildRequest
	evid     string
	set      *domain.ChunkSet
	ws       driven.Workspace
	build    *domain.Build
	manifest *domain.Manifest
	report   *domain.GateReport
	started  time.Time
}

// Build runs one build to promotion or failure.
//
//nolint:gocyclo // Orchestration function with necessary sequential steps
func (o *BuildOrchestrator) Build(ctx context.Context, req driving.BuildRequest) (*domain.BuildResult, error) {
	// 1. Validate the request and derive the version id
	if req.ChunkSet == nil {
		return nil, fmt.Errorf("%w: chunk set is nil", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(req.RunID) == "" {
		return nil, fmt.Errorf("%w: run id is empty", domain.ErrMissingInput)
	}
	evid, err := identity.EmbeddingVersionID(req.Version)
	if err != nil {
		return nil, err
	}
	if model := o.embedder.ModelName(); model != req.Version.Model {
		return nil, fmt.Errorf("%w: embedder serves %q but version names %q", domain.ErrInvalidInput, model, req.Version.Model)
	}

	// 2. One build per version at a time
	release, err := o.locks.acquire(evid)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, span := o.tracer.Start(ctx, "build", trace.WithAttributes(
		attribute.String("evid", evid),
		attribute.String("run_id", req.RunID),
	))
	defer span.End()

	r := &run{req: req, evid: evid, started: o.clock().UTC()}
	r.set = req.ChunkSet
	if req.Filter.Active() {
		r.set = req.ChunkSet.Filter(req.Filter)
	}

	// 3. A chunk set failing its gates never gets a workspace
	chunkReport := gates.ValidateChunkSet(r.set, req.Filter.ExpectedFamilies)
	if err := chunkReport.Err(); err != nil {
		return o.reject(ctx, span, r, chunkReport, err)
	}

	// 4. Isolated workspace; production is untouched
	r.ws, err = o.store.CreateWorkspace(ctx, evid, req.RunID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	defer r.ws.Close()
	r.build = domain.NewBuild(req.RunID, evid, r.ws.Path(), r.started)

	logger.Section(fmt.Sprintf("Build %s", evid))
	logger.Info("staging run %s in %s", req.RunID, r.ws.Path())
	o.publish(ctx, r, domain.EventBuildStarted)

	// 5. Embed with a bounded worker pool
	obs, err := o.embed(ctx, r)
	if err != nil {
		return o.fail(ctx, span, r, err)
	}

	// 6. Manifest before any gate or promotion
	r.manifest = o.newManifest(r, obs)
	r.manifest.Append(domain.AuditNote{
		At:      o.clock().UTC(),
		Phase:   string(gates.PhaseChunkSet),
		Message: outcomeMessage(chunkReport),
		Gates:   chunkReport.Results,
	})
	if err := r.ws.WriteManifest(ctx, r.manifest); err != nil {
		return o.fail(ctx, span, r, fmt.Errorf("write manifest: %w", err))
	}

	// 7. Staged gates, then the marker, then the promotion gates
	r.report, err = o.validate(ctx, r, gates.PhaseStaged)
	if err != nil {
		return o.fail(ctx, span, r, err)
	}
	if err := r.report.Err(); err != nil {
		return o.fail(ctx, span, r, err)
	}
	if err := r.ws.MarkSuccess(ctx); err != nil {
		return o.fail(ctx, span, r, fmt.Errorf("mark success: %w", err))
	}
	r.report, err = o.validate(ctx, r, gates.PhasePromotion)
	if err != nil {
		return o.fail(ctx, span, r, err)
	}
	if err := r.report.Err(); err != nil {
		return o.fail(ctx, span, r, err)
	}
	if err := r.build.Transition(domain.BuildPassed, ""); err != nil {
		return o.fail(ctx, span, r, err)
	}
	r.manifest.Append(domain.AuditNote{
		At:      o.clock().UTC(),
		Phase:   string(gates.PhasePromotion),
		Message: outcomeMessage(r.report),
		Gates:   r.report.Results,
	})
	if err := r.ws.WriteManifest(ctx, r.manifest); err != nil {
		return o.fail(ctx, span, r, fmt.Errorf("write manifest: %w", err))
	}

	// 8. Atomic promotion
	if err := ctx.Err(); err != nil {
		return o.fail(ctx, span, r, err)
	}
	col, err := o.store.Promote(ctx, r.ws)
	if err != nil {
		return o.fail(ctx, span, r, fmt.Errorf("promote: %w", err))
	}
	if err := r.build.Transition(domain.BuildPromoted, ""); err != nil {
		return o.fail(ctx, span, r, err)
	}
	r.build.Workspace = col.Path
	r.build.FinishedAt = o.clock().UTC()

	logger.Info("promoted %s (%d vectors)", col.Name, r.manifest.Observations.Vectors)
	o.finish(ctx, r, domain.EventBuildPromoted, col.Path)
	o.mirrorCollection(ctx, *col)

	return &domain.BuildResult{
		Build:      r.build,
		Manifest:   r.manifest,
		Report:     r.report,
		Collection: col,
	}, nil
}

// embed computes and stores every vector of the chunk set.
func (o *BuildOrchestrator) embed(ctx context.Context, r *run) (domain.BuildObservations, error) {
	ctx, span := o.tracer.Start(ctx, "build.embed")
	defer span.End()

	profile := r.req.Profile
	obs := domain.BuildObservations{InputLimit: o.inputLimit(profile)}
	start := time.Now()

	var chunks []domain.Chunk
	for _, t := range domain.AllChunkTypes() {
		chunks = append(chunks, r.set.Chunks(t)...)
	}

	batchSize := profile.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	workers := profile.Workers
	if workers <= 0 {
		workers = 1
	}

	var batches [][]domain.Chunk
	for i := 0; i < len(chunks); i += batchSize {
		end := min(i+batchSize, len(chunks))
		batches = append(batches, chunks[i:end])
	}

	// Inputs are prepared up front so truncation accounting is deterministic.
	inputs := make([][]string, len(batches))
	for b, batch := range batches {
		inputs[b] = make([]string, len(batch))
		for i, c := range batch {
			text, cut := o.prepareInput(c.Text, profile, obs.InputLimit)
			inputs[b][i] = text
			if cut {
				obs.TruncatedInputs++
			}
			if n := utf8.RuneCountInString(c.Text); n > obs.MaxInputChars {
				obs.MaxInputChars = n
			}
		}
	}

	results := make([][]domain.Vector, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for b := range batches {
		g.Go(func() error {
			vectors, err := o.embedBatch(gctx, r, batches[b], inputs[b])
			if err != nil {
				return err
			}
			results[b] = vectors
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return obs, err
	}

	counts := make(map[domain.ChunkType]int, 3)
	for _, vectors := range results {
		if err := r.ws.PutVectors(ctx, vectors); err != nil {
			return obs, fmt.Errorf("store vectors: %w", err)
		}
		for _, v := range vectors {
			counts[v.Metadata.ChunkType]++
		}
		obs.Vectors += len(vectors)
	}
	if o.metrics != nil {
		for _, t := range domain.AllChunkTypes() {
			o.metrics.VectorsWritten(r.evid, t, counts[t])
		}
	}

	logger.Debug("embedded %d vectors in %s (%d truncated)", obs.Vectors, time.Since(start), obs.TruncatedInputs)
	return obs, nil
}

func (o *BuildOrchestrator) embedBatch(ctx context.Context, r *run, batch []domain.Chunk, texts []string) ([]domain.Vector, error) {
	embeddings, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbedFailed, err)
	}
	if len(embeddings) != len(batch) {
		return nil, fmt.Errorf("%w: %d embeddings for %d inputs", domain.ErrEmbedFailed, len(embeddings), len(batch))
	}

	embeddedAt := o.clock().UTC()
	vectors := make([]domain.Vector, 0, len(batch))
	for i, c := range batch {
		emb := embeddings[i]
		if len(emb) == 0 {
			return nil, fmt.Errorf("%w: empty embedding for %s/%s", domain.ErrEmbedFailed, c.FamilyID, c.ChunkType)
		}
		if r.req.Profile.Normalize {
			normalizeL2(emb)
		}
		vectorID, err := identity.VectorID(c.FamilyID, c.ChunkType, r.evid)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, domain.Vector{
			VectorID:  vectorID,
			Embedding: emb,
			Text:      texts[i],
			Metadata: domain.VectorMetadata{
				VectorID:            vectorID,
				FamilyID:            c.FamilyID,
				SelectedPublication: c.SelectedPublication,
				Source:              c.Source,
				ChunkType:           c.ChunkType,
				ChunkPolicyVersion:  c.ChunkPolicyVersion,
				RunID:               r.req.RunID,
				ChunkID:             c.ChunkID,
				AssetID:             c.AssetID,
				EmbeddingModel:      o.embedder.ModelName(),
				EmbeddingVersionID:  r.evid,
				EmbeddingDim:        len(emb),
				EmbeddedAt:          embeddedAt,
				Spec:                c.Spec,
				LanguageHint:        c.LanguageHint,
				ScriptFlags:         c.Language.Flags,
				GovernanceFlags:     c.GovernanceFlags,
				InputChars:          utf8.RuneCountInString(texts[i]),
			},
		})
	}
	return vectors, nil
}

// inputLimit is the tighter of the embedder's declared limit and the profile's.
func (o *BuildOrchestrator) inputLimit(profile domain.ResourceProfile) int {
	limit := 0
	if l, ok := o.embedder.(driven.InputLimiter); ok {
		limit = l.InputLimit()
	}
	if profile.MaxInputChars > 0 && (limit == 0 || profile.MaxInputChars < limit) {
		limit = profile.MaxInputChars
	}
	return limit
}

// prepareInput returns the text sent to the embedder and whether it
// exceeds the limit. Only a declared truncation cuts the text here;
// otherwise the embedder would cut it silently.
func (o *BuildOrchestrator) prepareInput(text string, profile domain.ResourceProfile, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	if profile.TruncationDeclared {
		return headRunes(text, limit), true
	}
	return text, true
}

func (o *BuildOrchestrator) newManifest(r *run, obs domain.BuildObservations) *domain.Manifest {
	counts := make(map[domain.ChunkType]int, 3)
	hashes := make(map[domain.ChunkType]string, 3)
	for _, t := range domain.AllChunkTypes() {
		counts[t] = r.set.Count(t)
		hashes[t] = identity.FamilySetHash(r.set.FamilyIDs(t))
	}
	dim := o.embedder.Dimensions()
	return &domain.Manifest{
		RunID:              r.req.RunID,
		EmbeddingVersionID: r.evid,
		EmbeddingVersion:   r.req.Version,
		EmbeddingModel:     o.embedder.ModelName(),
		EmbeddingDim:       dim,
		ChunkPolicyVersion: r.set.PolicyVersion,
		ChunkRunID:         r.set.RunID,
		Counts:             counts,
		FamilySetHashes:    hashes,
		Profile:            r.req.Profile,
		Observations:       obs,
		IsolationFilter:    r.req.Filter,
		CreatedAt:          r.started,
	}
}

// validate reads the workspace back and runs the build gates.
func (o *BuildOrchestrator) validate(ctx context.Context, r *run, phase gates.Phase) (*domain.GateReport, error) {
	_, span := o.tracer.Start(ctx, "build.gates", trace.WithAttributes(attribute.String("phase", string(phase))))
	defer span.End()

	snap, err := snapshot(ctx, r.ws.Name(), r.ws.ReadManifest, r.ws.VectorMetadata, r.ws.Markers)
	if err != nil {
		return nil, err
	}
	report := gates.ValidateBuild(snap, phase)
	for _, res := range report.Results {
		logger.Gate(string(res.Name), string(res.Outcome), gateDetail(res))
		if o.metrics != nil && phase == gates.PhasePromotion {
			o.metrics.GateEvaluated(r.evid, res)
		}
	}
	if !report.Passed() && report.Err() != nil {
		span.SetStatus(codes.Error, report.Err().Error())
	}
	return report, nil
}

func snapshot(
	ctx context.Context,
	name string,
	manifest func(context.Context) (*domain.Manifest, error),
	vectors func(context.Context) ([]domain.VectorMetadata, error),
	markers func() (bool, bool, error),
) (gates.BuildSnapshot, error) {
	snap := gates.BuildSnapshot{WorkspaceName: name}
	m, err := manifest(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return snap, fmt.Errorf("read manifest: %w", err)
	default:
		snap.Manifest = m
	}
	snap.Vectors, err = vectors(ctx)
	if err != nil {
		return snap, fmt.Errorf("read vectors: %w", err)
	}
	snap.MarkerPresent, snap.PartialPresent, err = markers()
	if err != nil {
		return snap, fmt.Errorf("read markers: %w", err)
	}
	return snap, nil
}

// fail marks the workspace partial and returns the failed result.
// Cleanup runs even when ctx is cancelled.
func (o *BuildOrchestrator) fail(ctx context.Context, span trace.Span, r *run, cause error) (*domain.BuildResult, error) {
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	cleanup := context.WithoutCancel(ctx)
	reason := cause.Error()
	if err := r.ws.MarkPartial(cleanup, reason); err != nil {
		logger.Error("mark partial %s: %v", r.ws.Path(), err)
	}
	if err := r.build.Transition(domain.BuildFailed, reason); err != nil {
		logger.Warn("build %s: %v", r.req.RunID, err)
	}
	r.build.FinishedAt = o.clock().UTC()

	if r.manifest != nil {
		r.manifest.Append(domain.AuditNote{
			At:      r.build.FinishedAt,
			Phase:   "failed",
			Message: reason,
		})
		if err := r.ws.WriteManifest(cleanup, r.manifest); err != nil {
			logger.Error("write manifest %s: %v", r.ws.Path(), err)
		}
	}

	logger.Error("build %s failed: %s", r.evid, reason)
	o.finish(cleanup, r, domain.EventBuildFailed, r.ws.Path())

	return &domain.BuildResult{
		Build:    r.build,
		Manifest: r.manifest,
		Report:   r.report,
	}, cause
}

// reject fails a build whose chunk set did not pass its gates.
// Nothing was staged, so there is no workspace to mark.
func (o *BuildOrchestrator) reject(ctx context.Context, span trace.Span, r *run, report *domain.GateReport, cause error) (*domain.BuildResult, error) {
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	r.report = report
	r.build = domain.NewBuild(r.req.RunID, r.evid, "", r.started)
	if err := r.build.Transition(domain.BuildFailed, cause.Error()); err != nil {
		logger.Warn("build %s: %v", r.req.RunID, err)
	}
	r.build.FinishedAt = o.clock().UTC()

	for _, res := range report.Results {
		logger.Gate(string(res.Name), string(res.Outcome), gateDetail(res))
	}
	logger.Error("build %s refused: %s", r.evid, cause)
	o.finish(ctx, r, domain.EventBuildFailed, "")

	return &domain.BuildResult{Build: r.build, Report: report}, cause
}

// finish emits the terminal event and metrics. An empty dir skips the
// metrics textfile.
func (o *BuildOrchestrator) finish(ctx context.Context, r *run, kind domain.BuildEventKind, dir string) {
	o.publish(ctx, r, kind)
	if o.metrics == nil {
		return
	}
	o.metrics.BuildFinished(r.evid, r.build.Status, r.build.FinishedAt.Sub(r.started))
	if dir == "" {
		return
	}
	if err := o.metrics.Flush(dir); err != nil {
		logger.Warn("flush metrics: %v", err)
	}
}

func (o *BuildOrchestrator) publish(ctx context.Context, r *run, kind domain.BuildEventKind) {
	if o.events == nil {
		return
	}
	event := domain.BuildEvent{
		Kind:               kind,
		RunID:              r.req.RunID,
		EmbeddingVersionID: r.evid,
		Status:             r.build.Status,
		Reason:             r.build.Reason,
		At:                 o.clock().UTC(),
	}
	if r.manifest != nil {
		event.Vectors = r.manifest.Observations.Vectors
	}
	if r.report != nil {
		for _, res := range r.report.Failures() {
			event.FailedGates = append(event.FailedGates, res.Name)
		}
	}
	if err := o.events.Publish(ctx, event); err != nil {
		logger.Warn("publish %s: %v", kind, err)
	}
}

// mirrorCollection copies a promoted collection; failures are logged only.
func (o *BuildOrchestrator) mirrorCollection(ctx context.Context, col domain.Collection) {
	if o.mirror == nil {
		return
	}
	ctx, span := o.tracer.Start(ctx, "build.mirror")
	defer span.End()

	reader, err := o.store.Open(ctx, col)
	if err != nil {
		logger.Warn("mirror %s: %v", col.Name, err)
		return
	}
	defer reader.Close()
	if err := o.mirror.Mirror(ctx, reader); err != nil {
		span.RecordError(err)
		logger.Warn("mirror %s: %v", col.Name, err)
	}
}

// Verify re-runs the promotion gates against a version's production collection.
func (o *BuildOrchestrator) Verify(ctx context.Context, evid string) (*domain.GateReport, error) {
	col, err := o.store.Production(ctx, evid)
	if err != nil {
		return nil, err
	}
	reader, err := o.store.Open(ctx, *col)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	snap, err := snapshot(ctx, reader.Name(), reader.Manifest, reader.VectorMetadata, reader.Markers)
	if err != nil {
		return nil, err
	}
	report := gates.ValidateBuild(snap, gates.PhasePromotion)
	for _, res := range report.Results {
		logger.Gate(string(res.Name), string(res.Outcome), gateDetail(res))
	}
	return report, report.Err()
}

// Collections lists promoted collections.
func (o *BuildOrchestrator) Collections(ctx context.Context) ([]domain.Collection, error) {
	return o.store.List(ctx)
}

func gateDetail(res domain.GateResult) string {
	if res.Reason != "" {
		return res.Reason
	}
	return res.Actual
}

func outcomeMessage(report *domain.GateReport) string {
	if err := report.Err(); err != nil {
		return err.Error()
	}
	return fmt.Sprintf("%s gates passed", report.Phase)
}

func normalizeL2(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}

func headRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
