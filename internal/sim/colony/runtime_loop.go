package colony

import (
	"context"
	"time"
)

type command struct {
	ctx  context.Context
	fn   func(*Colony) error
	resp chan error
}

// Run drives the colony until ctx is done or Stop is called. Commands queued
// with Do run between ticks on this goroutine.
func (c *Colony) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(c.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-c.stop:
			c.shutdown()
			return nil
		case cmd := <-c.cmds:
			// A caller that timed out while queued has already been told so.
			err := cmd.ctx.Err()
			if err == nil {
				err = cmd.fn(c)
			}
			select {
			case cmd.resp <- err:
			default:
				// Caller gave up; don't block the loop.
			}
		case <-ticker.C:
			c.step(ctx)
		}
	}
}

func (c *Colony) Stop() { close(c.stop) }

// Do runs fn on the colony goroutine and waits for its result. It is the
// only safe way to touch citizens from other goroutines while Run is active.
// If ctx is done before the loop picks the command up, fn never runs.
func (c *Colony) Do(ctx context.Context, fn func(*Colony) error) error {
	cmd := command{ctx: ctx, fn: fn, resp: make(chan error, 1)}
	select {
	case c.cmds <- cmd:
	case <-c.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.resp:
		return err
	case <-c.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StepOnce advances one tick with the same ordering as Run. Tests and
// tooling use it to drive a colony without a ticker.
func (c *Colony) StepOnce(ctx context.Context) uint64 {
	c.step(ctx)
	return c.tick.Load()
}

func (c *Colony) step(ctx context.Context) {
	start := time.Now()
	tick := c.tick.Add(1)

	if tick%uint64(c.cfg.PersistEveryTicks) == 0 {
		if _, err := c.Persist(ctx); err != nil {
			c.log.Printf("persist tick=%d: %v", tick, err)
		}
	}
	if tick%uint64(c.cfg.ReplicateEveryTicks) == 0 {
		if _, err := c.PublishViews(); err != nil {
			c.log.Printf("publish tick=%d: %v", tick, err)
		}
	}
	if c.cfg.SnapshotEveryTicks > 0 && c.cfg.SnapshotDir != "" && tick%uint64(c.cfg.SnapshotEveryTicks) == 0 {
		if _, err := c.SaveSnapshot(); err != nil {
			c.log.Printf("snapshot tick=%d: %v", tick, err)
		}
	}

	c.stepDur = time.Since(start)
	c.updateMetrics()
}

func (c *Colony) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if n, err := c.Persist(ctx); err != nil {
		c.log.Printf("final persist: %v", err)
	} else if n > 0 {
		c.log.Printf("final persist: %d citizens", n)
	}
	if c.cfg.SnapshotDir != "" {
		if _, err := c.SaveSnapshot(); err != nil {
			c.log.Printf("final snapshot: %v", err)
		}
	}
	c.updateMetrics()
}
