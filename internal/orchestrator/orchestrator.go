// Package orchestrator assembles batches: it builds the host list,
// probes it, binds detection or rotation operations to dispatcher
// tasks, and consolidates the outcome.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hashguard/hashguard/internal/config"
	"github.com/hashguard/hashguard/internal/detect"
	"github.com/hashguard/hashguard/internal/dispatch"
	"github.com/hashguard/hashguard/internal/fleet"
	"github.com/hashguard/hashguard/internal/remote"
	"github.com/hashguard/hashguard/internal/report"
	"github.com/hashguard/hashguard/internal/rotate"
	"github.com/hashguard/hashguard/internal/secret"
	"github.com/hashguard/hashguard/internal/store"
)

// Prober annotates the target list with reachability and OS family
// before dispatch. fleet.Prober is the production implementation.
type Prober interface {
	Annotate(names []string, fast bool) []fleet.Host
}

// Orchestrator holds the collaborators shared by all batch kinds. The
// history store may be nil; persistence is optional.
type Orchestrator struct {
	cfg      *config.Config
	logger   *slog.Logger
	prober   Prober
	runner   remote.Runner
	querier  detect.Querier
	provider rotate.Provider
	history  *store.Store
}

// New wires an orchestrator from its collaborators.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	prober Prober,
	runner remote.Runner,
	querier detect.Querier,
	provider rotate.Provider,
	history *store.Store,
) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		logger:   logger.With("component", "orchestrator"),
		prober:   prober,
		runner:   runner,
		querier:  querier,
		provider: provider,
		history:  history,
	}
}

// HostSelection names where the target list comes from. Exactly one
// of the two fields must be set; anything else is a fatal
// precondition.
type HostSelection struct {
	// ListFile is a path to a plain text host list.
	ListFile string
	// Controller is a domain controller to enumerate members from.
	Controller string
}

// resolveHosts builds the ordered target list from the selection.
func (o *Orchestrator) resolveHosts(ctx context.Context, sel HostSelection) ([]string, error) {
	switch {
	case sel.ListFile != "" && sel.Controller != "":
		return nil, fmt.Errorf("host list file and domain enumeration are mutually exclusive")
	case sel.ListFile != "":
		src := &fleet.FileSource{Path: sel.ListFile}
		return src.ListMemberHosts(ctx)
	case sel.Controller != "":
		src := &fleet.DomainEnumerator{
			Controller: sel.Controller,
			Runner:     o.runner,
			Logger:     o.logger,
		}
		return src.ListMemberHosts(ctx)
	default:
		return nil, fmt.Errorf("either a host list file or a domain controller is required")
	}
}

// DetectOptions parameterizes a detection batch.
type DetectOptions struct {
	Hosts      HostSelection
	WindowDays int
	Channel    string
	Workers    int
}

// DetectReport is the outcome of a detection batch.
type DetectReport struct {
	BatchID     uuid.UUID
	Matches     []detect.Event
	Summary     *report.Summary
	TotalHosts  int
	AliveHosts  int
	StartedAt   time.Time
	CompletedAt time.Time
}

// Detect runs the pass-the-hash detection batch: one event query per
// host, matches merged and sorted newest first. Per-host failures
// (unreachable, unsupported OS) become diagnostics, never batch
// aborts.
func (o *Orchestrator) Detect(ctx context.Context, opts DetectOptions) (*DetectReport, error) {
	startedAt := time.Now()

	if opts.WindowDays <= 0 {
		opts.WindowDays = o.cfg.Detect.WindowDays
	}
	if opts.Channel == "" {
		opts.Channel = o.cfg.Detect.Channel
	}
	if opts.Workers <= 0 {
		opts.Workers = o.cfg.Detect.Workers
	}

	names, err := o.resolveHosts(ctx, opts.Hosts)
	if err != nil {
		return nil, err
	}

	hosts := o.prober.Annotate(names, false)
	alive, _ := fleet.Partition(hosts)

	filter := detect.NewFilter(o.cfg.Detect.LocalDomain, time.Duration(opts.WindowDays)*24*time.Hour)
	filter.SuccessID = o.cfg.Detect.SuccessEventID
	filter.FailureID = o.cfg.Detect.FailureEventID

	d := dispatch.New(opts.Workers, o.logger)
	d.Register(dispatch.KindDetect, o.detectHandler(filter))

	windowSeconds := opts.WindowDays * 24 * 60 * 60
	for _, host := range hosts {
		d.Submit(ctx, dispatch.NewTask(host, dispatch.KindDetect, dispatch.Params{
			Channel:       opts.Channel,
			WindowSeconds: windowSeconds,
		}))
	}

	results := d.Wait()
	summary := report.Aggregate(results)

	var matches []detect.Event
	for _, r := range results {
		matches = append(matches, r.Events...)
	}
	detect.SortEvents(matches)

	rep := &DetectReport{
		BatchID:     uuid.New(),
		Matches:     matches,
		Summary:     summary,
		TotalHosts:  len(hosts),
		AliveHosts:  len(alive),
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
	}

	o.saveHistory(ctx, "detect", rep.BatchID, rep.TotalHosts, rep.AliveHosts, summary, rep.StartedAt, rep.CompletedAt, matches)

	o.logger.Info("detection batch complete",
		"batch_id", rep.BatchID,
		"hosts", rep.TotalHosts,
		"matches", len(matches),
		"host_failures", len(summary.FailureHosts),
	)

	return rep, nil
}

// detectHandler binds the filter and querier into the worker-side
// handler for detect tasks.
func (o *Orchestrator) detectHandler(filter *detect.Filter) dispatch.HandlerFunc {
	return func(ctx context.Context, task dispatch.Task) dispatch.Result {
		host := task.Host

		if !host.Alive {
			return dispatch.Failure(task, "host unreachable")
		}
		if host.OSFamily != fleet.FamilyWindows {
			return dispatch.Failure(task,
				fmt.Sprintf("unsupported operating system family %q", host.OSFamily))
		}

		records, err := o.querier.QueryEvents(ctx, host.Name, task.Params.Channel, task.Params.WindowSeconds)
		if err != nil {
			return dispatch.Failure(task, fmt.Sprintf("event query failed: %v", err))
		}

		events := filter.Apply(records)
		result := dispatch.Success(task, fmt.Sprintf("%d matches", len(events)))
		result.Events = events
		return result
	}
}

// RotateOptions parameterizes a rotation batch.
type RotateOptions struct {
	Hosts     HostSelection
	Account   string
	Workers   int
	MinLen    int
	MaxLen    int
	OutputDir string

	Policy    secret.Method
	Base      string
	Direction secret.Direction
}

// RotateReport is the outcome of a rotation batch.
type RotateReport struct {
	BatchID          uuid.UUID
	Summary          *report.Summary
	TotalHosts       int
	AliveHosts       int
	UnavailableHosts []string
	SuccessPath      string
	FailurePath      string
	StartedAt        time.Time
	CompletedAt      time.Time
}

// Rotate runs a credential rotation batch. Credential material is
// generated for every target host before dispatch and verified
// against the host count; any mismatch aborts before the first task
// runs. Per-host failures land in the failure artifact and never stop
// the batch.
func (o *Orchestrator) Rotate(ctx context.Context, opts RotateOptions) (*RotateReport, error) {
	startedAt := time.Now()

	if opts.Account == "" {
		opts.Account = o.cfg.Rotate.Account
	}
	if opts.Workers <= 0 {
		opts.Workers = o.cfg.Rotate.Workers
	}
	if opts.MinLen <= 0 {
		opts.MinLen = o.cfg.Rotate.MinLength
	}
	if opts.MaxLen <= 0 {
		opts.MaxLen = o.cfg.Rotate.MaxLength
	}
	if opts.OutputDir == "" {
		opts.OutputDir = o.cfg.Rotate.OutputDir
	}

	names, err := o.resolveHosts(ctx, opts.Hosts)
	if err != nil {
		return nil, err
	}

	generator, err := o.buildGenerator(opts)
	if err != nil {
		return nil, err
	}

	creds, err := generator.Generate(names)
	if err != nil {
		return nil, fmt.Errorf("credential generation failed: %w", err)
	}
	if err := secret.Verify(creds, names); err != nil {
		return nil, fmt.Errorf("credential invariant violated: %w", err)
	}

	writer, err := report.OpenWriter(opts.OutputDir, o.logger)
	if err != nil {
		return nil, err
	}

	hosts := o.prober.Annotate(names, true)
	alive, unavailable := fleet.Partition(hosts)

	runner := &rotate.TaskRunner{
		Provider: o.provider,
		Writer:   writer,
		Logger:   o.logger,
	}

	d := dispatch.New(opts.Workers, o.logger)
	d.Register(dispatch.KindRotate, runner.Handle)

	for i, host := range hosts {
		d.Submit(ctx, dispatch.NewTask(host, dispatch.KindRotate, dispatch.Params{
			Account: opts.Account,
			Secret:  creds[i].Secret,
		}))
	}

	results := d.Wait()

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("artifact writer failed: %w", err)
	}

	summary := report.Aggregate(results)
	if err := summary.VerifyFailureArtifact(writer.FailurePath()); err != nil {
		return nil, fmt.Errorf("artifact consistency invariant violated: %w", err)
	}

	rep := &RotateReport{
		BatchID:          uuid.New(),
		Summary:          summary,
		TotalHosts:       len(hosts),
		AliveHosts:       len(alive),
		UnavailableHosts: fleet.Names(unavailable),
		SuccessPath:      writer.SuccessPath(),
		FailurePath:      writer.FailurePath(),
		StartedAt:        startedAt,
		CompletedAt:      time.Now(),
	}

	o.saveHistory(ctx, "rotate", rep.BatchID, rep.TotalHosts, rep.AliveHosts, summary, rep.StartedAt, rep.CompletedAt, nil)

	o.logger.Info("rotation batch complete",
		"batch_id", rep.BatchID,
		"hosts", rep.TotalHosts,
		"rotated", len(summary.SuccessHosts),
		"failed", len(summary.FailureHosts),
	)

	return rep, nil
}

// buildGenerator selects the generation policy for the batch.
func (o *Orchestrator) buildGenerator(opts RotateOptions) (secret.Generator, error) {
	switch opts.Policy {
	case secret.MethodRandom, "":
		return &secret.RandomPolicy{
			Account: opts.Account,
			MinLen:  opts.MinLen,
			MaxLen:  opts.MaxLen,
		}, nil
	case secret.MethodSalted:
		return &secret.SaltedPolicy{
			Account:   opts.Account,
			Base:      opts.Base,
			Direction: opts.Direction,
		}, nil
	default:
		return nil, fmt.Errorf("unknown generation policy %q", opts.Policy)
	}
}

// saveHistory records the batch in the optional history store.
func (o *Orchestrator) saveHistory(
	ctx context.Context,
	kind string,
	batchID uuid.UUID,
	total, aliveCount int,
	summary *report.Summary,
	startedAt, completedAt time.Time,
	matches []detect.Event,
) {
	if o.history == nil {
		return
	}

	batch := store.Batch{
		ID:           batchID,
		Kind:         kind,
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
		TotalHosts:   total,
		AliveHosts:   aliveCount,
		SuccessCount: len(summary.SuccessHosts),
		FailureCount: len(summary.FailureHosts),
	}

	if err := o.history.SaveBatch(ctx, batch); err != nil {
		o.logger.Error("failed to save batch history", "batch_id", batchID, "error", err)
		return
	}

	if err := o.history.InsertEvents(ctx, batchID, matches); err != nil {
		o.logger.Error("failed to save detection events", "batch_id", batchID, "error", err)
	}
}
