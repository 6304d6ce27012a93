// File: internal/agent/executor.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/apps"
	"github.com/xkilldash9x/droidpilot/internal/config"
	"github.com/xkilldash9x/droidpilot/internal/device"
	"github.com/xkilldash9x/droidpilot/internal/observability"
	"github.com/xkilldash9x/droidpilot/internal/resolver"
)

// Screen resolution recorded until the device describes itself.
const (
	defaultScreenWidth  = 1080
	defaultScreenHeight = 2400
)

var uuidNewString = uuid.NewString

// Dependencies are the collaborators of a TaskExecutor. Artifacts and Metrics
// are optional.
type Dependencies struct {
	Device    DevicePort
	Oracle    Oracle
	Launcher  AppLauncher
	Store     schemas.EpisodeStore
	Artifacts ArtifactWriter
	Metrics   *observability.Metrics
}

// TaskExecutor runs one task query at a time against one device.
type TaskExecutor struct {
	cfg         config.AgentConfig
	cleanOnExit bool
	deps        Dependencies
	logger      *zap.Logger
	now         func() time.Time
}

// NewTaskExecutor validates the dependencies and returns an executor.
func NewTaskExecutor(cfg *config.Config, deps Dependencies, logger *zap.Logger) (*TaskExecutor, error) {
	switch {
	case deps.Device == nil:
		return nil, errors.New("task executor requires a device")
	case deps.Oracle == nil:
		return nil, errors.New("task executor requires an oracle")
	case deps.Launcher == nil:
		return nil, errors.New("task executor requires an app launcher")
	case deps.Store == nil:
		return nil, errors.New("task executor requires an episode store")
	case cfg.Agent.MaxSteps <= 0:
		return nil, fmt.Errorf("max_steps must be positive, got %d", cfg.Agent.MaxSteps)
	}
	return &TaskExecutor{
		cfg:         cfg.Agent,
		cleanOnExit: cfg.Device.CleanAppsOnExit,
		deps:        deps,
		logger:      logger.Named("executor"),
		now:         time.Now,
	}, nil
}

// episodeRun is the mutable state of one Run call. It never outlives it.
type episodeRun struct {
	ex      *TaskExecutor
	ep      *schemas.Episode
	logger  *zap.Logger
	step    int
	capture *device.Capture
	plan    Plan
	record  schemas.StepRecord
	mark    *resolver.Resolution
	reason  schemas.TerminalReason
	cause   error
}

// Run drives the control loop for query until it terminates and returns the
// persisted episode. Any terminal reason other than Completed is also
// reported as an *ExecutorError; the episode is returned with it.
func (e *TaskExecutor) Run(ctx context.Context, query string) (*schemas.Episode, error) {
	cleaned := CleanQuery(query)
	if cleaned == "" {
		return nil, &ExecutorError{Reason: ReasonInvalidQuery, Err: fmt.Errorf("query %q is empty after cleaning", query)}
	}

	r := &episodeRun{ex: e}
	state := r.init(ctx, query, cleaned)
	for state != StateTerminated {
		next := r.advance(ctx, state)
		r.logger.Debug("State transition.", zap.Int("step", r.step), zap.String("from", string(state)), zap.String("to", string(next)))
		state = next
	}
	return r.terminate(ctx)
}

func (r *episodeRun) advance(ctx context.Context, state State) State {
	switch state {
	case StateObserving:
		return r.observe(ctx)
	case StatePlanning:
		return r.planStep(ctx)
	case StateActing:
		return r.act(ctx)
	case StateJudging:
		return r.judge(ctx)
	}
	panic(fmt.Sprintf("unexpected executor state %q", state))
}

func (r *episodeRun) init(ctx context.Context, raw, cleaned string) State {
	e := r.ex
	r.ep = &schemas.Episode{
		EpisodeID:        uuidNewString(),
		Phone:            schemas.UnknownPhone,
		OS:               schemas.UnknownOS,
		ScreenResolution: [2]int{defaultScreenWidth, defaultScreenHeight},
		Query:            cleaned,
		StartedAt:        e.now().UTC(),
		Data:             []schemas.StepRecord{},
	}
	if raw != cleaned {
		r.ep.RawQuery = raw
	}
	r.logger = e.logger.With(zap.String("episode_id", r.ep.EpisodeID))

	if d, ok := e.deps.Device.(device.Describer); ok {
		info, err := d.Info(ctx)
		if err != nil {
			r.logger.Warn("Could not read device metadata.", zap.Error(err))
		} else {
			if p := info.Phone(); p != "" {
				r.ep.Phone = p
			}
			if name := info.OS(); name != "" {
				r.ep.OS = name
			}
			if info.Width > 0 && info.Height > 0 {
				r.ep.ScreenResolution = [2]int{info.Width, info.Height}
			}
		}
	}

	r.logger.Info("Episode started.", zap.String("query", cleaned), zap.String("phone", r.ep.Phone))
	r.step = 1
	return StateObserving
}

// observe captures the screen, waiting out loading pages.
func (r *episodeRun) observe(ctx context.Context) State {
	e := r.ex
	r.record = schemas.StepRecord{Step: r.step, StartedAt: e.now().UTC(), Plan: []schemas.PlanItem{}}
	r.capture, r.mark = nil, nil

	// LoadRetries bounds the total number of captures, the first included.
	got, err := e.deps.Device.Capture(ctx)
	for attempt := 1; err == nil && attempt < e.cfg.LoadRetries && got.Snapshot.LooksLoading(); attempt++ {
		r.logger.Debug("Page still loading, capturing again.", zap.Int("step", r.step), zap.Int("attempt", attempt+1))
		if err = sleepCtx(ctx, e.cfg.LoadRetryDelay); err != nil {
			break
		}
		got, err = e.deps.Device.Capture(ctx)
	}
	if err != nil {
		r.fail(ErrCodeDeviceError, fmt.Errorf("capture failed: %w", err))
		return StateJudging
	}
	r.capture = got

	name := fmt.Sprintf("1-%d", r.step)
	r.record.XML = r.writeArtifact(ctx, name+".xml", got.XML)
	r.record.Screenshot = r.writeArtifact(ctx, name+".png", got.Screenshot)
	return StatePlanning
}

// planStep asks the oracle, retrying up to PlanningRetries extra times.
func (r *episodeRun) planStep(ctx context.Context) State {
	e := r.ex
	req := PlanRequest{
		Query:      r.ep.Query,
		Step:       r.step,
		Snapshot:   r.capture.Snapshot,
		Screenshot: r.capture.Screenshot,
		History:    r.ep.Data,
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.PlanningRetries; attempt++ {
		start := e.now()
		plan, err := e.deps.Oracle.Plan(ctx, req)
		e.deps.Metrics.ObserveOracle(e.now().Sub(start))
		if err == nil {
			r.plan = plan
			r.record.Observation = plan.Observation
			r.record.Plan = append(r.record.Plan, plan.Items...)
			return StateActing
		}
		lastErr = err
		r.logger.Warn("Planning attempt failed.", zap.Int("step", r.step), zap.Int("attempt", attempt+1), zap.Error(err))
		if ctx.Err() != nil {
			r.reason, r.cause = schemas.ReasonInterrupted, ctx.Err()
			return StateTerminated
		}
	}

	r.reason, r.cause = schemas.ReasonPlanningFailed, lastErr
	r.ep.Error = lastErr.Error()
	return StateTerminated
}

// act executes plan items in order. The first failure stops the step.
func (r *episodeRun) act(ctx context.Context) State {
	e := r.ex
	snap := r.capture.Snapshot

items:
	for i, item := range r.plan.Items {
		// Plans may come from any oracle, not only ParsePlan.
		if verr := item.Validate(); verr != nil {
			r.itemFailed(i, item, ErrCodeInvalidAction, fmt.Errorf("invalid %s item: %w", item.Type, verr))
			break items
		}

		var (
			code ErrorCode
			err  error
		)
		switch item.Type {
		case schemas.ActionEnd:
			r.record.Completed = true
			e.deps.Metrics.ObserveAction(string(item.Type), "success")
			break items

		case schemas.ActionTap:
			code, err = r.tap(ctx, i, item)

		case schemas.ActionTyping:
			if item.HasTarget() {
				code, err = r.tap(ctx, i, schemas.PlanItem{Position: item.Position, Box: item.Box, Target: item.Target, Times: 1})
			}
			if err == nil {
				if err = e.deps.Device.TypeText(ctx, item.Text); err != nil {
					code = ErrCodeDeviceError
				}
			}

		case schemas.ActionOpen:
			res, lerr := e.deps.Launcher.Launch(ctx, item, snap)
			var launchErr *apps.LaunchError
			switch {
			case lerr == nil:
				r.record.Launch = append(r.record.Launch, res.Attempts...)
				if res.Resolution != nil {
					r.record.Resolved = append(r.record.Resolved, res.Resolution.Record(i))
				}
			case errors.As(lerr, &launchErr):
				r.record.Launch = append(r.record.Launch, launchErr.Attempts...)
				code, err = ErrCodeLaunchFailed, lerr
			default:
				code, err = ErrCodeLaunchFailed, lerr
			}

		case schemas.ActionSwipe:
			from, to := *item.StartPosition, *item.StopPosition
			if !snap.Contains(from) || !snap.Contains(to) {
				code, err = ErrCodeOutOfBounds, fmt.Errorf("swipe %s -> %s leaves the %dx%d screen", from, to, snap.Width(), snap.Height())
			} else if err = e.deps.Device.Swipe(ctx, from, to, time.Duration(item.Duration)*time.Millisecond); err != nil {
				code = ErrCodeDeviceError
			} else {
				r.record.Resolved = append(r.record.Resolved, schemas.ResolvedTarget{Item: i, Position: from, Source: string(resolver.SourcePosition)})
			}

		case schemas.ActionWait:
			d := time.Duration(item.Duration) * time.Millisecond
			if e.cfg.MaxWait > 0 && d > e.cfg.MaxWait {
				d = e.cfg.MaxWait
			}
			if err = sleepCtx(ctx, d); err != nil {
				code = ErrCodeDeviceError
			}
		}

		if err != nil {
			r.itemFailed(i, item, code, err)
			break items
		}
		e.deps.Metrics.ObserveAction(string(item.Type), "success")
	}

	r.writeLabel(ctx)
	return StateJudging
}

// itemFailed records a failed plan item against the current step.
func (r *episodeRun) itemFailed(i int, item schemas.PlanItem, code ErrorCode, err error) {
	r.ex.deps.Metrics.ObserveAction(string(item.Type), "failed")
	r.logger.Warn("Plan item failed.",
		zap.Int("step", r.step),
		zap.Int("item", i),
		zap.String("type", string(item.Type)),
		zap.String("code", string(code)),
		zap.Error(err))
	r.fail(code, err)
}

// tap resolves the item's target and taps it Times times.
func (r *episodeRun) tap(ctx context.Context, i int, item schemas.PlanItem) (ErrorCode, error) {
	res, err := resolver.Resolve(r.capture.Snapshot, resolver.TargetFor(item))
	if err != nil {
		var rerr *resolver.ResolutionError
		if errors.As(err, &rerr) && rerr.Reason == resolver.ReasonOutOfBounds {
			return ErrCodeOutOfBounds, err
		}
		return ErrCodeElementNotFound, err
	}
	r.record.Resolved = append(r.record.Resolved, res.Record(i))
	if r.mark == nil {
		r.mark = &res
	}
	for n := 0; n < max(item.Times, 1); n++ {
		if err := r.ex.deps.Device.Tap(ctx, res.Point.X(), res.Point.Y()); err != nil {
			return ErrCodeDeviceError, err
		}
	}
	return "", nil
}

// judge appends the step and decides whether the loop continues.
func (r *episodeRun) judge(ctx context.Context) State {
	e := r.ex
	r.record.DurationMS = e.now().Sub(r.record.StartedAt).Milliseconds()
	if err := r.ep.AppendStep(r.record); err != nil {
		// Only reachable on a bookkeeping bug; stop rather than corrupt the record.
		r.logger.Error("Could not append step.", zap.Error(err))
		r.reason, r.cause = schemas.ReasonInterrupted, err
		return StateTerminated
	}
	r.logger.Info("Step finished.",
		zap.Int("step", r.step),
		zap.Bool("completed", r.record.Completed),
		zap.Bool("failed", r.record.Failed),
		zap.String("observation", r.record.Observation))

	if e.cfg.PersistEachStep {
		if err := e.deps.Store.SaveEpisode(ctx, r.ep); err != nil {
			r.logger.Warn("Per-step save failed.", zap.Int("step", r.step), zap.Error(err))
		}
	}

	switch {
	case r.record.Completed:
		r.reason = schemas.ReasonCompleted
	case r.step >= e.cfg.MaxSteps:
		r.reason = schemas.ReasonStepBudgetExhausted
		r.cause = fmt.Errorf("no end after %d steps", e.cfg.MaxSteps)
	case ctx.Err() != nil:
		r.reason, r.cause = schemas.ReasonInterrupted, ctx.Err()
	default:
		r.step++
		return StateObserving
	}
	return StateTerminated
}

// terminate stamps the reason, persists the episode and cleans up. It runs
// even when ctx is cancelled.
func (r *episodeRun) terminate(ctx context.Context) (*schemas.Episode, error) {
	e := r.ex
	ctx = context.WithoutCancel(ctx)

	r.ep.Terminate(r.reason, e.now())
	e.deps.Metrics.ObserveEpisode(string(r.reason))
	r.logger.Info("Episode terminated.", zap.String("reason", string(r.reason)), zap.Int("steps", len(r.ep.Data)))

	if e.cleanOnExit {
		if c, ok := e.deps.Device.(device.Cleaner); ok {
			if err := c.CleanApps(ctx); err != nil {
				r.logger.Warn("Cleanup failed.", zap.Error(err))
			}
		}
	}

	if err := e.deps.Store.SaveEpisode(ctx, r.ep); err != nil {
		return r.ep, fmt.Errorf("failed to persist episode %s: %w", r.ep.EpisodeID, err)
	}

	var reason ExecutorReason
	switch r.reason {
	case schemas.ReasonCompleted:
		return r.ep, nil
	case schemas.ReasonStepBudgetExhausted:
		reason = ReasonStepBudgetExhausted
	case schemas.ReasonPlanningFailed:
		reason = ReasonPlanningFailed
	default:
		reason = ReasonInterrupted
	}
	return r.ep, &ExecutorError{Reason: reason, Err: r.cause}
}

func (r *episodeRun) fail(code ErrorCode, err error) {
	r.record.Failed = true
	r.record.ErrorCode = string(code)
	r.record.Error = err.Error()
}

// writeArtifact stores data when an artifact writer is configured. Failures
// are logged and leave the reference empty.
func (r *episodeRun) writeArtifact(ctx context.Context, name string, data []byte) string {
	if r.ex.deps.Artifacts == nil || len(data) == 0 {
		return ""
	}
	ref, err := r.ex.deps.Artifacts.WriteArtifact(ctx, r.ep.EpisodeID, name, data)
	if err != nil {
		r.logger.Warn("Could not write artifact.", zap.String("name", name), zap.Error(err))
		return ""
	}
	return ref
}

// writeLabel stores the screenshot with the first tap target marked.
func (r *episodeRun) writeLabel(ctx context.Context) {
	if !r.ex.cfg.MarkScreenshots || r.mark == nil || len(r.capture.Screenshot) == 0 {
		return
	}
	pt := r.mark.Point
	marked, err := device.MarkScreenshot(r.capture.Screenshot, r.mark.Box, &pt)
	if err != nil {
		r.logger.Debug("Could not mark screenshot.", zap.Error(err))
		return
	}
	r.record.Label = r.writeArtifact(ctx, fmt.Sprintf("1-%d_label.png", r.step), marked)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
