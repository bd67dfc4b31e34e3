package colony

import (
	"context"
	"errors"
	"testing"
	"time"

	"colonycraft.ai/internal/sim/citizen"
)

func TestStepOnce_FollowsCadence(t *testing.T) {
	store := newMemStore()
	pub := &capturePublisher{}
	c := newTestColony(t, Config{PersistEveryTicks: 2, ReplicateEveryTicks: 3}, Deps{Store: store, Publisher: pub})
	c.SpawnCitizen(1)
	ctx := context.Background()

	c.StepOnce(ctx) // tick 1
	if store.saves != 0 || pub.count() != 0 {
		t.Fatalf("tick 1: saves=%d published=%d", store.saves, pub.count())
	}
	c.StepOnce(ctx) // tick 2
	if store.saves != 1 || pub.count() != 0 {
		t.Fatalf("tick 2: saves=%d published=%d", store.saves, pub.count())
	}
	c.StepOnce(ctx) // tick 3
	if pub.count() != 1 {
		t.Fatalf("tick 3: published=%d", pub.count())
	}
	m := c.Metrics()
	if m.Tick != 3 || m.Citizens != 1 || m.LoadedEntities != 1 || m.PersistedTotal != 1 || m.PublishedTotal != 1 {
		t.Fatalf("metrics: %+v", m)
	}
}

func TestRun_DoSerializesAndStopPersists(t *testing.T) {
	store := newMemStore()
	c := newTestColony(t, Config{TickRateHz: 50, PersistEveryTicks: 1000}, Deps{Store: store})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	var spawned *citizen.Citizen
	err := c.Do(ctx, func(c *Colony) error {
		cz, err := c.SpawnCitizen(8)
		spawned = cz
		return err
	})
	if err != nil {
		t.Fatalf("do spawn: %v", err)
	}
	sentinel := errors.New("boom")
	if err := c.Do(ctx, func(*Colony) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Fatalf("do error: got %v", err)
	}

	c.Stop()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, ok := store.rows[spawned.ID()]; !ok {
		t.Fatalf("shutdown did not persist the dirty citizen")
	}
	if err := c.Do(ctx, func(*Colony) error { return nil }); !errors.Is(err, ErrStopped) {
		t.Fatalf("do after stop: got %v", err)
	}
}

func TestDo_ExpiredCommandDoesNotRun(t *testing.T) {
	c := newTestColony(t, Config{TickRateHz: 50}, Deps{})

	// Nothing drains the queue yet, so the caller times out while queued.
	ran := false
	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	if err := c.Do(short, func(*Colony) error { ran = true; return nil }); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("do: got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// Commands run in order, so once this one returns the expired one was
	// already dequeued.
	var sawRan bool
	if err := c.Do(ctx, func(*Colony) error { sawRan = ran; return nil }); err != nil {
		t.Fatalf("do: %v", err)
	}
	c.Stop()
	<-done
	if sawRan || ran {
		t.Fatalf("expired command ran")
	}
}
