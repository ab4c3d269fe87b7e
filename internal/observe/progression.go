package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hifzlab/tasmee/internal/hifz"
)

// ProgressionObserver implements [hifz.Observer] by recording progression
// events as metrics. All methods are non-blocking.
type ProgressionObserver struct {
	m *Metrics
}

var _ hifz.Observer = (*ProgressionObserver)(nil)

// NewProgressionObserver returns an observer recording to m.
func NewProgressionObserver(m *Metrics) *ProgressionObserver {
	return &ProgressionObserver{m: m}
}

// StageAdvanced counts the move under the stage the learner advanced into.
func (o *ProgressionObserver) StageAdvanced(ctx context.Context, learner string, from, to hifz.LearnerPosition) {
	o.m.StageAdvances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", string(to.Stage))),
	)
}

// SignalRejected counts the refusal under the stage the signal addressed.
func (o *ProgressionObserver) SignalRejected(ctx context.Context, learner string, c hifz.Completion) {
	o.m.RejectedSignals.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", string(c.Stage))),
	)
}

// TaskOpened raises the active task gauge.
func (o *ProgressionObserver) TaskOpened(ctx context.Context, t hifz.Task) {
	o.m.ActiveTasks.Add(ctx, 1)
}

// TaskClosed lowers the active task gauge.
func (o *ProgressionObserver) TaskClosed(ctx context.Context, t hifz.Task) {
	o.m.ActiveTasks.Add(ctx, -1)
}
