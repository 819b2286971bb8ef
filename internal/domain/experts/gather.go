package experts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/riskgate/internal/domain/model"
)

// Gathered holds the verdicts collected for one trip.
type Gathered struct {
	Scores   map[model.ExpertID]model.ExpertScore
	Failures map[model.ExpertID]error
}

// Gather asks every expert for its verdict concurrently and waits at most
// timeout. Experts that fail or do not answer in time are reported in
// Failures and left out of Scores, so the engine treats them as missing.
// A non-positive timeout waits only for ctx.
func Gather(ctx context.Context, timeout time.Duration, trip Trip, experts ...Expert) Gathered {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out := Gathered{
		Scores:   make(map[model.ExpertID]model.ExpertScore, len(experts)),
		Failures: make(map[model.ExpertID]error),
	}
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	claimed := make(map[model.ExpertID]bool, len(experts))
	for _, e := range experts {
		id := e.ID()
		if claimed[id] {
			mu.Lock()
			out.Failures[id] = fmt.Errorf("%w: %q", ErrDuplicateExpert, id)
			mu.Unlock()
			continue
		}
		claimed[id] = true

		g.Go(func() error {
			s, err := produce(ctx, e, trip)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.Failures[id] = err
				return nil
			}
			s.ExpertID = id
			out.Scores[id] = s
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// produce calls e but returns as soon as ctx is done, even when e ignores it.
func produce(ctx context.Context, e Expert, trip Trip) (model.ExpertScore, error) {
	type verdict struct {
		score model.ExpertScore
		err   error
	}
	ch := make(chan verdict, 1)
	go func() {
		s, err := e.ProduceScore(ctx, trip)
		ch <- verdict{s, err}
	}()

	select {
	case v := <-ch:
		return v.score, v.err
	case <-ctx.Done():
		return model.ExpertScore{}, fmt.Errorf("expert %q: %w", e.ID(), ctx.Err())
	}
}
