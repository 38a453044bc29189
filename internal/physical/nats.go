package physical

import (
	"context"
	"log/slog"
	"time"

	nats "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/reactorcore/engine/internal/resilience"
)

var propagator = propagation.TraceContext{}

// NATSSource turns inbound messages on a subject into physical-action
// schedule calls, named after the trigger the message targets. Connect
// retries with backoff and a circuit breaker guards against a
// misbehaving publisher flooding schedule calls.
type NATSSource struct {
	URL         string
	Subject     string
	TriggerName string
	breaker     *resilience.CircuitBreaker
}

// NewNATSSource returns a Source that connects to url and forwards
// messages on subject as schedule calls against triggerName. The
// breaker trips after 200 schedule calls in a 10s window regardless of
// outcome, which is the flood case, or after half of at least 5 calls
// in that window fail, which is the misconfigured-trigger case.
func NewNATSSource(url, subject, triggerName string) *NATSSource {
	return &NATSSource{
		URL:         url,
		Subject:     subject,
		TriggerName: triggerName,
		breaker:     resilience.NewScheduleFloodBreaker(10*time.Second, 10, 200, 5, 0.5, 2*time.Second, 1),
	}
}

// Run connects to NATS with retry, subscribes, and forwards every
// message until ctx is cancelled.
func (s *NATSSource) Run(ctx context.Context, sched Scheduler) error {
	nc, err := resilience.Retry(ctx, 5, 200*time.Millisecond, func() (*nats.Conn, error) {
		return nats.Connect(s.URL)
	})
	if err != nil {
		return err
	}
	defer nc.Close()

	sub, err := nc.Subscribe(s.Subject, func(m *nats.Msg) {
		carrier := propagation.HeaderCarrier(m.Header)
		spanCtx := propagator.Extract(context.Background(), carrier)
		tr := otel.Tracer("reactorcore/physical")
		_, span := tr.Start(spanCtx, "physical.consume", trace.WithSpanKind(trace.SpanKindConsumer))
		defer span.End()

		if !s.breaker.AllowSchedule() {
			slog.Warn("physical source circuit open, dropping message", "subject", s.Subject)
			return
		}
		err := sched.SchedulePhysical(s.TriggerName, m.Data)
		s.breaker.RecordScheduleResult(err)
		if err != nil {
			slog.Error("physical schedule failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	return ctx.Err()
}
