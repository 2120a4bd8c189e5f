package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"access-gate/internal/util"
)

type Sink interface {
	Name() string
	Write(ctx context.Context, event *Event) error
}

// Recorder fans each event out to every sink in parallel.
type Recorder struct {
	sinks   []Sink
	timeout time.Duration
}

func NewRecorder(timeout time.Duration, sinks ...Sink) *Recorder {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Recorder{sinks: sinks, timeout: timeout}
}

func (r *Recorder) Sinks() []string {
	names := make([]string, len(r.sinks))
	for i, s := range r.sinks {
		names[i] = s.Name()
	}
	return names
}

// Record writes the event to every sink. It outlives a cancelled request
// context but is bounded by the recorder timeout.
func (r *Recorder) Record(ctx context.Context, event *Event) {
	if r == nil || len(r.sinks) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	var g errgroup.Group
	for _, sink := range r.sinks {
		sink := sink
		g.Go(func() error {
			if err := sink.Write(ctx, event); err != nil {
				util.Warn("Audit sink write failed",
					zap.String("sink", sink.Name()),
					zap.String("event_type", string(event.Type)),
					zap.String("event_id", event.ID),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}
