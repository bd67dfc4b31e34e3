package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"colonycraft.ai/internal/protocol"
)

func startServer(t *testing.T, opts Options) (*Server, string) {
	t.Helper()
	s := NewServer("c1", opts, nil)
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(hs.Close)
	return s, "ws" + strings.TrimPrefix(hs.URL, "http")
}

func views(tick uint64) protocol.CitizenViewsMsg {
	return protocol.CitizenViewsMsg{
		Type:            protocol.TypeCitizenViews,
		ProtocolVersion: protocol.Version,
		ColonyID:        "c1",
		Tick:            tick,
		Citizens:        []protocol.CitizenBlob{{ID: "x", Blob: []byte{0xa0}}},
	}
}

func waitSubscribers(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s.Stats().Subscribers == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("subscribers: got %d want %d", s.Stats().Subscribers, n)
}

func TestServer_NewSubscriberGetsLatestThenUpdates(t *testing.T) {
	s, url := startServer(t, Options{})
	s.Publish(views(3))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, "c1")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	msg, err := c.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if msg.Tick != 3 || len(msg.Citizens) != 1 || msg.Citizens[0].ID != "x" {
		t.Fatalf("first snapshot: %+v", msg)
	}

	waitSubscribers(t, s, 1)
	s.Publish(views(4))
	msg, err = c.Next()
	if err != nil || msg.Tick != 4 {
		t.Fatalf("second snapshot: %+v %v", msg, err)
	}
}

func TestServer_RejectsWrongColony(t *testing.T) {
	_, url := startServer(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, "nope")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	_, err = c.Next()
	var ce *CloseError
	if !errors.As(err, &ce) || ce.Reason != protocol.ErrColonyNotFound {
		t.Fatalf("expected %s close, got %v", protocol.ErrColonyNotFound, err)
	}
}

func TestServer_EnforcesMaxSubscribers(t *testing.T) {
	s, url := startServer(t, Options{MaxSubscribers: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, err := Dial(ctx, url, "c1")
	if err != nil {
		t.Fatalf("dial first: %v", err)
	}
	defer first.Close()
	waitSubscribers(t, s, 1)

	second, err := Dial(ctx, url, "c1")
	if err != nil {
		t.Fatalf("dial second: %v", err)
	}
	defer second.Close()
	_, err = second.Next()
	var ce *CloseError
	if !errors.As(err, &ce) || ce.Reason != protocol.ErrColonyBusy {
		t.Fatalf("expected %s close, got %v", protocol.ErrColonyBusy, err)
	}
	if s.Stats().RejectedTotal != 1 {
		t.Fatalf("rejected: %+v", s.Stats())
	}
}

func TestSendLatest_DropsOldest(t *testing.T) {
	ch := make(chan []byte, 2)
	sendLatest(ch, []byte("a"))
	sendLatest(ch, []byte("b"))
	if sendLatest(ch, []byte("c")) {
		t.Fatalf("expected a drop")
	}
	if got := string(<-ch) + string(<-ch); got != "bc" {
		t.Fatalf("queue: %q", got)
	}
}

func TestServer_IdleSubscriberStaysConnected(t *testing.T) {
	idle := 200 * time.Millisecond
	s, url := startServer(t, Options{IdleTimeout: idle})
	s.Publish(views(1))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, "c1")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	// The client only reads; its reads answer the server's pings.
	ticks := make(chan uint64, 4)
	streamDone := make(chan error, 1)
	go func() {
		streamDone <- c.Stream(ctx, func(m protocol.CitizenViewsMsg) { ticks <- m.Tick })
	}()

	if got := <-ticks; got != 1 {
		t.Fatalf("first tick: %d", got)
	}
	waitSubscribers(t, s, 1)

	time.Sleep(4 * idle)
	if n := s.Stats().Subscribers; n != 1 {
		t.Fatalf("subscribers after idle: %d", n)
	}
	s.Publish(views(2))
	select {
	case got := <-ticks:
		if got != 2 {
			t.Fatalf("tick after idle: %d", got)
		}
	case err := <-streamDone:
		t.Fatalf("stream ended while idle: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("no snapshot after idle")
	}
}
