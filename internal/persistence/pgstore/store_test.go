package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"colonycraft.ai/internal/sim/colony"
)

func TestOpen_RejectsEmptyDSN(t *testing.T) {
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOpen_PropagatesDriverOpenError(t *testing.T) {
	prev := sqlOpen
	sqlOpen = func(string, string) (*sql.DB, error) { return nil, errors.New("no driver") }
	defer func() { sqlOpen = prev }()

	if _, err := Open(context.Background(), "postgres://x"); err == nil {
		t.Fatalf("expected open error")
	}
}

// Runs against a real database when COLONYCRAFT_PG_DSN is set.
func TestStore_SaveLoadDelete(t *testing.T) {
	dsn := os.Getenv("COLONYCRAFT_PG_DSN")
	if dsn == "" {
		t.Skip("COLONYCRAFT_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	colonyID := "pgtest-" + uuid.NewString()
	a, b := uuid.New(), uuid.New()
	docs := []colony.CitizenDoc{
		{ID: a, Name: "Tom A. Smith", Doc: []byte(`{"id":"` + a.String() + `","level":1}`)},
		{ID: b, Name: "Ada B. Cooper", Doc: []byte(`{"id":"` + b.String() + `","level":2}`)},
	}
	if err := s.SaveCitizens(ctx, colonyID, 5, docs); err != nil {
		t.Fatalf("save: %v", err)
	}
	docs[0].Name = "Tom A. Smith II"
	if err := s.SaveCitizens(ctx, colonyID, 6, docs[:1]); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := s.LoadCitizens(ctx, colonyID)
	if err != nil || len(got) != 2 {
		t.Fatalf("load: %v %v", got, err)
	}
	for _, d := range got {
		if d.ID == a && d.Name != "Tom A. Smith II" {
			t.Fatalf("upsert lost: %+v", d)
		}
	}
	if err := s.DeleteCitizen(ctx, colonyID, a); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteCitizen(ctx, colonyID, b); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ = s.LoadCitizens(ctx, colonyID)
	if len(got) != 0 {
		t.Fatalf("rows left: %v", got)
	}
}
