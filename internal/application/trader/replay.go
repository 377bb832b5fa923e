package trader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/alejandrodnm/riskgate/internal/application/engine"
	"github.com/alejandrodnm/riskgate/internal/domain"
	"github.com/alejandrodnm/riskgate/internal/ports"
)

// ReplayResult totals a replay.
type ReplayResult struct {
	Ticks    int
	Exits    int
	Opened   int
	Rejected int
}

// Replay drives the engine through a recorded tick stream. The engine must
// have been built on clock; each tick moves the clock to its timestamp
// before anything is applied, so holding periods and day boundaries follow
// the recording. Proposals are polled once per tick. When notify is set
// every tick is printed as a cycle.
func (t *Trader) Replay(ctx context.Context, src ports.TickSource, clock *engine.ManualClock, notify bool) (ReplayResult, error) {
	var res ReplayResult
	for {
		tick, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("trader.Replay: tick %d: %w", res.Ticks+1, err)
		}
		clock.Set(tick.At)

		proposals, err := t.proposals(ctx)
		if err != nil {
			return res, fmt.Errorf("trader.Replay: %w", err)
		}
		c := t.apply(ctx, tick, proposals, notify)

		res.Ticks++
		res.Exits += len(c.Exits)
		res.Opened += len(c.Opened)
		res.Rejected += len(c.Rejected)
	}

	slog.Info("trader: replay finished",
		"ticks", res.Ticks,
		"opened", res.Opened,
		"exits", res.Exits,
		"rejected", res.Rejected,
	)
	return res, nil
}

// Prepend returns a source that yields first and then the rest of src.
// Used when the first tick had to be read to start the clock.
func Prepend(first domain.Tick, src ports.TickSource) ports.TickSource {
	return &prepended{first: &first, rest: src}
}

type prepended struct {
	first *domain.Tick
	rest  ports.TickSource
}

func (p *prepended) Next(ctx context.Context) (domain.Tick, error) {
	if p.first != nil {
		t := *p.first
		p.first = nil
		return t, nil
	}
	return p.rest.Next(ctx)
}
