package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hifzlab/tasmee/internal/recite"
)

// instrumentedVerifier decorates a [recite.Verifier] with metrics and a span
// per verification.
type instrumentedVerifier struct {
	next recite.Verifier
	m    *Metrics
}

var _ recite.Verifier = (*instrumentedVerifier)(nil)

// WrapVerifier returns a [recite.Verifier] that records latency, score
// distribution, word errors and refinement outcomes to m around next. The
// wrapper never alters the result.
func WrapVerifier(next recite.Verifier, m *Metrics) recite.Verifier {
	return &instrumentedVerifier{next: next, m: m}
}

func (v *instrumentedVerifier) Verify(ctx context.Context, req recite.Request) (*recite.Result, error) {
	strictness := req.Strictness
	if !strictness.IsValid() {
		strictness = recite.Standard
	}

	ctx, span := StartSpan(ctx, "recite.Verify",
		trace.WithAttributes(
			attribute.String("strictness", strictness.String()),
			attribute.Bool("semantic", req.UseSemanticRefinement),
		),
	)
	defer span.End()

	start := time.Now()
	res, err := v.next.Verify(ctx, req)
	v.m.VerifyDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("strictness", strictness.String())),
	)
	if err != nil {
		v.m.RecordSemanticOutcome(ctx, "error")
		span.RecordError(err)
		return nil, err
	}

	v.m.VerifyScore.Record(ctx, int64(res.Score))
	for _, we := range res.Errors {
		v.m.WordErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("type", string(we.Type))),
		)
	}
	if res.Refined {
		v.m.RecordSemanticOutcome(ctx, "refined")
	} else {
		v.m.RecordSemanticOutcome(ctx, "raw")
	}

	span.SetAttributes(
		attribute.Int("score", res.Score),
		attribute.Bool("refined", res.Refined),
	)
	return res, nil
}
