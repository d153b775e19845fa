// Package executor schedules graph nodes level by level and resolves each
// one from the cache or the runner.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// Options configures one build invocation.
type Options struct {
	// Workers bounds per-level parallelism. Zero means NumCPU.
	Workers int

	// KeepGoing continues independent subgraphs after a failure instead of
	// cancelling the invocation. Transitive dependents of a failed node are
	// never run; they are reported as skipped.
	KeepGoing bool

	// Force marks every node dirty regardless of history.
	Force bool

	// Prefetch warms the fast cache tiers for clean nodes' artifacts in
	// the background before execution starts.
	Prefetch bool

	// Env lists the environment variables significant for node digests.
	Env map[string]string
}

// Result exposes the completed artifacts for the export stage, keyed both
// by node id and by node digest, plus the terminal status of every node
// the invocation touched.
type Result struct {
	Artifacts map[domain.NodeID]domain.Artifact
	ByDigest  map[digest.Digest]domain.Artifact
	Statuses  map[domain.NodeID]domain.VertexStatus
}

// Executor drives the build session state machine. Within a level nodes
// run concurrently under the configured worker bound; level k+1 never
// starts before every node of level k has resolved.
type Executor struct {
	cache     ports.ArtifactCache
	runner    ports.Runner
	history   ports.HistoryStore
	log       ports.Logger
	telemetry ports.Telemetry
}

// New creates an Executor.
func New(cache ports.ArtifactCache, runner ports.Runner, history ports.HistoryStore, log ports.Logger, telemetry ports.Telemetry) *Executor {
	return &Executor{
		cache:     cache,
		runner:    runner,
		history:   history,
		log:       log,
		telemetry: telemetry,
	}
}

// Execute runs the whole invocation against a fresh session: digest
// computation, dirty marking, level-ordered execution, history flush. The
// returned Result holds whatever resolved, also on partial failure.
func (e *Executor) Execute(ctx context.Context, graph *domain.Graph, session *domain.Session, opts Options) (*Result, error) {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	e.cache.BindSession(session)
	session.TotalNodes.Store(int64(graph.Len()))

	if err := session.Transition(domain.SessionGraphBuilt); err != nil {
		return nil, err
	}

	envFP := domain.EnvironmentFingerprint(runtime.GOOS, runtime.GOARCH, opts.Env)
	records, dirty, err := seedDirty(graph, e.history, envFP, opts.Force)
	if err != nil {
		_ = session.Transition(domain.SessionFailed)
		return nil, err
	}
	session.DirtyNodes.Store(dirty)
	if err := session.Transition(domain.SessionDirtyMarked); err != nil {
		return nil, err
	}

	if opts.Prefetch {
		e.cache.Prefetch(ctx, cleanArtifacts(graph, records))
	}

	if err := session.Transition(domain.SessionExecuting); err != nil {
		return nil, err
	}

	run := &runState{
		executor: e,
		graph:    graph,
		session:  session,
		records:  records,
		opts:     opts,
		result: &Result{
			Artifacts: make(map[domain.NodeID]domain.Artifact, graph.Len()),
			ByDigest:  make(map[digest.Digest]domain.Artifact, graph.Len()),
			Statuses:  make(map[domain.NodeID]domain.VertexStatus, graph.Len()),
		},
		failed: make(map[domain.NodeID]error),
	}

	execErr := run.executeLevels(ctx)
	if execErr != nil {
		_ = session.Transition(domain.SessionFailed)
		return run.result, execErr
	}
	if err := session.Transition(domain.SessionDone); err != nil {
		return run.result, err
	}
	return run.result, nil
}

// cleanArtifacts collects the artifact digests recorded for clean nodes.
func cleanArtifacts(graph *domain.Graph, records map[domain.NodeID]*domain.Record) []digest.Digest {
	var out []digest.Digest
	for node := range graph.Nodes() {
		if node.Dirty() {
			continue
		}
		if rec := records[node.ID]; rec != nil && rec.Artifact != "" {
			out = append(out, rec.Artifact)
		}
	}
	return out
}

type runState struct {
	executor *Executor
	graph    *domain.Graph
	session  *domain.Session
	records  map[domain.NodeID]*domain.Record
	opts     Options
	result   *Result

	mu     sync.Mutex
	failed map[domain.NodeID]error
}

func (r *runState) executeLevels(ctx context.Context) error {
	for _, level := range r.graph.Levels() {
		if err := ctx.Err(); err != nil {
			return errors.Join(domain.ErrBuildExecutionFailed, err)
		}
		if err := r.executeLevel(ctx, level); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.failed) > 0 {
		causes := make([]error, 0, len(r.failed)+1)
		causes = append(causes, domain.ErrBuildExecutionFailed)
		for id, cause := range r.failed {
			node, err := r.graph.Node(id)
			if err != nil {
				continue
			}
			causes = append(causes, zerr.With(zerr.Wrap(cause, "node failed"), "node", node.Name))
		}
		return errors.Join(causes...)
	}
	return nil
}

func (r *runState) executeLevel(ctx context.Context, level []domain.NodeID) error {
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(r.opts.Workers)

	for _, id := range level {
		node, err := r.graph.Node(id)
		if err != nil {
			return err
		}

		// A node below a failure never runs. In keep-going mode it is
		// reported as skipped while independent subgraphs continue.
		if cause := r.blockedBy(node); cause != nil {
			r.markSkipped(node, cause)
			continue
		}

		group.Go(func() error {
			artifact, status, err := r.executor.resolve(gctx, node, r.records[node.ID], r.session, r.inputArtifacts(node))
			if err != nil {
				r.mu.Lock()
				r.failed[node.ID] = err
				r.result.Statuses[node.ID] = domain.VertexStatusFailed
				r.mu.Unlock()
				r.session.FailedNodes.Add(1)
				if !r.opts.KeepGoing {
					return err
				}
				return nil
			}

			r.mu.Lock()
			r.result.Artifacts[node.ID] = artifact
			r.result.ByDigest[node.Digest()] = artifact
			r.result.Statuses[node.ID] = status
			r.mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		// Fail fast: the first failure cancelled the level. Anything the
		// cancellation interrupted is not committed anywhere.
		return errors.Join(domain.ErrBuildExecutionFailed, err)
	}
	return nil
}

// blockedBy returns the error of the first failed or skipped input, or nil.
func (r *runState) blockedBy(node *domain.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, in := range node.Inputs {
		if cause, ok := r.failed[in]; ok {
			return cause
		}
	}
	return nil
}

func (r *runState) markSkipped(node *domain.Node, cause error) {
	err := domain.Tag(domain.ErrNodeSkipped, "node", node.Name)
	r.mu.Lock()
	r.failed[node.ID] = errors.Join(err, cause)
	r.result.Statuses[node.ID] = domain.VertexStatusSkipped
	r.mu.Unlock()
	r.session.SkippedNodes.Add(1)
	r.executor.log.Warn(fmt.Sprintf("skipping %s: an input failed", node.Name))
}

// inputArtifacts returns the node's input artifacts in declared order.
// All inputs resolved in earlier levels, so the reads race with nothing.
func (r *runState) inputArtifacts(node *domain.Node) []domain.Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	inputs := make([]domain.Artifact, 0, len(node.Inputs))
	for _, in := range node.Inputs {
		inputs = append(inputs, r.result.Artifacts[in])
	}
	return inputs
}

// resolve produces the artifact for one node: from the record's cache
// entry when the node is clean, through the runner otherwise. A clean node
// whose artifact was collected from every tier runs again.
func (e *Executor) resolve(ctx context.Context, node *domain.Node, record *domain.Record, session *domain.Session, inputs []domain.Artifact) (domain.Artifact, domain.VertexStatus, error) {
	d := node.Digest()

	// Instruction-less nodes carry no payload of their own; their digest
	// is their whole contribution to the graph.
	if node.Instruction == "" {
		a := domain.Artifact{Digest: digest.FromBytes(nil)}
		e.flushRecord(node, d, "")
		return a, domain.VertexStatusCompleted, nil
	}

	vertex := e.telemetry.Vertex(ctx, d, node.Name)
	ctx = ports.ContextWithVertex(ctx, vertex)

	if !node.Dirty() && record != nil && record.Artifact != "" {
		a, err := e.cache.Get(ctx, record.Artifact)
		if err == nil {
			session.CacheHits.Add(1)
			vertex.Cached()
			vertex.Complete(nil)
			return a, domain.VertexStatusCached, nil
		}
		e.log.Warn(fmt.Sprintf("artifact for clean node %s is gone, rerunning: %v", node.Name, err))
	}

	a, err := e.cache.Materialize(ctx, d, func(ctx context.Context) (domain.Artifact, error) {
		session.RunnerCalls.Add(1)
		return e.runner.Run(ctx, node.Instruction, inputs, nil)
	})
	if err != nil {
		vertex.Complete(err)
		return domain.Artifact{}, domain.VertexStatusFailed, err
	}

	e.flushRecord(node, d, a.Digest)
	vertex.Complete(nil)
	return a, domain.VertexStatusCompleted, nil
}

// flushRecord persists the node's history record. Failures degrade the
// next build to a rerun, so they warn instead of failing this one.
func (e *Executor) flushRecord(node *domain.Node, d digest.Digest, artifact digest.Digest) {
	record := domain.Record{
		Key:        node.Key(),
		Digest:     d,
		Artifact:   artifact,
		RecordedAt: time.Now().UTC(),
	}
	if err := e.history.Put(record); err != nil {
		e.log.Warn(fmt.Sprintf("failed to record history for %s: %v", node.Name, err))
	}
}
