package rotate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashguard/hashguard/internal/dispatch"
	"github.com/hashguard/hashguard/internal/fleet"
	"github.com/hashguard/hashguard/internal/report"
)

// TaskRunner executes one rotation task per host. Each host is
// attempted exactly once per batch; there are no retries.
type TaskRunner struct {
	Provider Provider
	Writer   *report.Writer
	Logger   *slog.Logger
}

// Handle rotates the task's account secret on its host. Every outcome
// produces exactly one artifact line: a host/account/secret record on
// success, a bare hostname on failure. A panic below this frame is
// recovered here, not in the dispatcher, so the failed host still gets
// its artifact line. The secret never reaches the log stream.
func (r *TaskRunner) Handle(ctx context.Context, task dispatch.Task) (result dispatch.Result) {
	host := task.Host
	logger := r.Logger.With("host", host.Name, "request_id", task.RequestID)

	defer func() {
		if rec := recover(); rec != nil {
			result = r.fail(logger, task, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	if !host.Alive {
		return r.fail(logger, task, "host unreachable")
	}
	if host.OSFamily != fleet.FamilyWindows {
		return r.fail(logger, task, fmt.Sprintf("unsupported operating system family %q", host.OSFamily))
	}

	handle, err := r.Provider.Resolve(ctx, task.Params.Account, host.Name)
	if err != nil {
		return r.fail(logger, task, fmt.Sprintf("resolve failed: %v", err))
	}

	if err := r.Provider.SetSecret(ctx, handle, task.Params.Secret); err != nil {
		return r.fail(logger, task, fmt.Sprintf("set-secret failed: %v", err))
	}

	if err := r.Provider.Commit(ctx, handle); err != nil {
		return r.fail(logger, task, fmt.Sprintf("commit failed: %v", err))
	}

	r.Writer.Success(host.Name, task.Params.Account, task.Params.Secret)
	logger.Info("secret rotated", "account", task.Params.Account)

	return dispatch.Success(task, fmt.Sprintf("rotated %s", task.Params.Account))
}

func (r *TaskRunner) fail(logger *slog.Logger, task dispatch.Task, reason string) dispatch.Result {
	r.Writer.Failure(task.Host.Name)
	logger.Warn("rotation failed", "reason", reason)
	return dispatch.Failure(task, reason)
}
