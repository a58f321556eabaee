package workflow

import (
	"context"
	"errors"
	"strconv"

	"github.com/toolhub/agenttools/internal/telemetry"
)

// AdvisoryStatus is the outcome of a step whose failure does not abort the
// operation that ran it.
type AdvisoryStatus string

const (
	AdvisoryPassed  AdvisoryStatus = "passed"
	AdvisoryFailed  AdvisoryStatus = "failed"
	AdvisorySkipped AdvisoryStatus = "skipped"
)

const stepChecks = "checks"

// Advisory records what happened to a best-effort step so callers can see
// it instead of it vanishing.
type Advisory struct {
	Step   string         `json:"step"`
	Status AdvisoryStatus `json:"status"`
	Detail string         `json:"detail,omitempty"`
}

func (w *Workflow) watchChecksIfPullRequest(ctx context.Context) Advisory {
	pr, err := w.pullRequestNumber(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoPullRequest) {
			w.logger.WarnContext(ctx, "could not look up pull request", "err", err)
		}
		return w.advisory(ctx, AdvisorySkipped, "no pull request: "+err.Error())
	}
	return w.watchChecks(ctx, pr)
}

// watchChecks blocks until the checks of pr settle.
func (w *Workflow) watchChecks(ctx context.Context, pr int) Advisory {
	out, err := w.run.Run(ctx, []string{w.cfg.Tracker, "pr", "checks", strconv.Itoa(pr), "--watch"}, true)
	if err != nil {
		return w.advisory(ctx, AdvisoryFailed, err.Error())
	}
	return w.advisory(ctx, AdvisoryPassed, out.Text())
}

func (w *Workflow) advisory(ctx context.Context, status AdvisoryStatus, detail string) Advisory {
	telemetry.IncAdvisoryStep(stepChecks, string(status))
	if status == AdvisoryFailed {
		w.logger.WarnContext(ctx, "advisory step failed", "step", stepChecks, "detail", detail)
	}
	return Advisory{Step: stepChecks, Status: status, Detail: detail}
}
