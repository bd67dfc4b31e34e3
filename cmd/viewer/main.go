package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"colonycraft.ai/internal/protocol"
	"colonycraft.ai/internal/replica"
	"colonycraft.ai/internal/sim/ids"
	"colonycraft.ai/internal/transport/ws"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/replicate", "replication url")
		colonyID = flag.String("colony", "colony_1", "colony id to observe")
		every    = flag.Duration("print_every", 5*time.Second, "roster print interval (0 prints every snapshot)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[viewer] ", log.LstdFlags|log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := ws.Dial(ctx, *url, *colonyID)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer client.Close()

	cache := replica.NewCache(*colonyID, logger)
	var last time.Time
	err = client.Stream(ctx, func(msg protocol.CitizenViewsMsg) {
		res, err := cache.Apply(msg)
		if err != nil {
			logger.Printf("apply: %v", err)
			return
		}
		if res.Kept > 0 || res.Skipped > 0 {
			logger.Printf("tick=%d kept %d stale views, skipped %d", msg.Tick, res.Kept, res.Skipped)
		}
		if *every > 0 && time.Since(last) < *every {
			return
		}
		last = time.Now()
		printRoster(logger, cache)
	})

	var ce *ws.CloseError
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.As(err, &ce):
		logger.Fatalf("server closed subscription: %s", ce.Reason)
	default:
		logger.Fatalf("stream: %v", err)
	}
}

func printRoster(logger *log.Logger, cache *replica.Cache) {
	views := cache.List()
	logger.Printf("tick=%d citizens=%d rejected=%d", cache.Tick(), len(views), cache.Rejected())
	for _, v := range views {
		s := v.Skills()
		entity := "-"
		if v.EntityID() >= 0 {
			entity = strconv.Itoa(v.EntityID())
		}
		logger.Printf("  %s %-24s lvl=%d skills=%d/%d/%d/%d/%d home=%s work=%s entity=%s",
			v.ID(), v.Name(), v.Level(),
			s.Strength, s.Stamina, s.Wisdom, s.Intelligence, s.Charisma,
			posOrDash(v.Home()), posOrDash(v.Work()), entity)
	}
}

func posOrDash(p ids.BlockPos, ok bool) string {
	if !ok {
		return "-"
	}
	return p.String()
}
