package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/riskgate/internal/adapters/mq/worker"
	"github.com/okian/riskgate/internal/domain/dedupe"
	"github.com/okian/riskgate/internal/domain/model"
)

// deliveredCacheSize bounds how many publisher/publication pairs Multi
// remembers as delivered.
const deliveredCacheSize = 100_000

// Multi fans a publication out to several publishers in order. Every
// publisher is attempted; failures are joined. A publisher that already
// accepted a publication is skipped when the same publication is published
// again, so a retry only reaches the publishers that failed.
type Multi struct {
	publishers []worker.Publisher
	delivered  dedupe.Deduper
}

// NewMulti drops nil entries.
func NewMulti(publishers ...worker.Publisher) *Multi {
	m := &Multi{delivered: dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(deliveredCacheSize))}
	for _, p := range publishers {
		if p != nil {
			m.publishers = append(m.publishers, p)
		}
	}
	return m
}

// Len reports how many publishers are attached.
func (m *Multi) Len() int { return len(m.publishers) }

// Name joins the child names, "none" when empty.
func (m *Multi) Name() string {
	if len(m.publishers) == 0 {
		return "none"
	}
	names := make([]string, len(m.publishers))
	for i, p := range m.publishers {
		names[i] = p.Name()
	}
	return strings.Join(names, "+")
}

// Publish implements worker.Publisher.
func (m *Multi) Publish(ctx context.Context, p model.Publication) error { //nolint:gocritic // hugeParam: matches worker.Publisher
	var errs []error
	for _, pub := range m.publishers {
		key := pub.Name() + "\x00" + p.ID
		if m.delivered.SeenAndRecord(ctx, key) {
			continue
		}
		if err := pub.Publish(ctx, p); err != nil {
			m.delivered.Unrecord(ctx, key)
			errs = append(errs, fmt.Errorf("%s: %w", pub.Name(), err))
		}
	}
	return errors.Join(errs...)
}
