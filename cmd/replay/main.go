package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	persistlog "colonycraft.ai/internal/persistence/log"
	"colonycraft.ai/internal/persistence/snapshot"
	"colonycraft.ai/internal/sim/catalogs"
	"colonycraft.ai/internal/sim/citizen"
	"colonycraft.ai/internal/sim/colony"
)

// replay restores a colony snapshot offline, checks that every citizen
// survives another durable and view encoding, then walks the audit trail
// written after the snapshot.
func main() {
	var (
		snapPath  = flag.String("snapshot", "", "path to .snap.zst (default: newest under <colony_dir>/snapshots)")
		colonyDir = flag.String("colony_dir", "", "colony data dir holding snapshots/ and audit/ (optional)")
		configDir = flag.String("configs", "./configs", "config directory")
		citizenID = flag.String("citizen", "", "only print audit entries for this citizen")
		fromTick  = flag.Uint64("from_tick", 0, "first audit tick to print (default: snapshot tick)")
		toTick    = flag.Uint64("to_tick", 0, "last audit tick to print (inclusive, optional)")
		strict    = flag.Bool("strict", false, "exit non-zero when the audit trail names unknown citizens")
	)
	flag.Parse()

	path := *snapPath
	if path == "" && *colonyDir != "" {
		p, err := snapshot.Latest(filepath.Join(*colonyDir, "snapshots"))
		if err != nil {
			fail("find snapshot:", err)
		}
		path = p
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot (or -colony_dir with a snapshot)")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fail("read snapshot:", err)
	}
	fmt.Printf("snapshot v%d colony=%s tick=%d citizens=%d buildings=%d\n",
		snap.Header.Version, snap.Header.ColonyID, snap.Header.Tick, len(snap.Citizens), len(snap.Buildings))

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fail("load catalogs:", err)
	}
	c, err := colony.New(colony.Config{ID: snap.Header.ColonyID}, cats, log.New(io.Discard, "", 0), colony.Deps{})
	if err != nil {
		fail("colony:", err)
	}
	if err := c.ImportSnapshot(snap); err != nil {
		fail("import snapshot:", err)
	}

	known := map[string]bool{}
	for _, cz := range c.Citizens() {
		known[cz.ID().String()] = true
		if err := recheck(cz); err != nil {
			fail("citizen "+cz.ID().String()+":", err)
		}
	}
	restored := len(c.Citizens())
	fmt.Printf("restore ok: citizens=%d quarantined=%d buildings=%d\n", restored, len(snap.Citizens)-restored, c.Buildings().Len())

	if *colonyDir == "" {
		return
	}
	if *citizenID != "" {
		if _, err := uuid.Parse(*citizenID); err != nil {
			fail("bad -citizen:", err)
		}
	}

	files, err := persistlog.AuditFiles(*colonyDir)
	if err != nil {
		fail("list audit files:", err)
	}
	from := *fromTick
	if from == 0 {
		from = snap.Header.Tick
	}

	var printed, unknown int
	for _, f := range files {
		entries, err := persistlog.ReadAuditFile(f)
		if err != nil {
			fail("read audit:", err)
		}
		for _, e := range entries {
			if e.ColonyID != snap.Header.ColonyID || e.Tick < from {
				continue
			}
			if *toTick != 0 && e.Tick > *toTick {
				continue
			}
			if e.Action == colony.AuditSpawn && e.Citizen != "" {
				known[e.Citizen] = true
			}
			if e.Citizen != "" && !known[e.Citizen] {
				unknown++
			}
			if *citizenID != "" && e.Citizen != *citizenID {
				continue
			}
			printed++
			fmt.Printf("tick=%d %-16s citizen=%s building=%s %s\n", e.Tick, e.Action, orDash(e.Citizen), orDash(e.Building), e.Reason)
		}
	}
	fmt.Printf("audit: files=%d printed=%d unknown_citizen_refs=%d\n", len(files), printed, unknown)
	if *strict && unknown > 0 {
		os.Exit(1)
	}
}

// recheck re-encodes a restored citizen both ways and compares what the
// other side would read back.
func recheck(cz *citizen.Citizen) error {
	doc, err := cz.WriteDurable()
	if err != nil {
		return fmt.Errorf("write durable: %w", err)
	}
	again, err := citizen.FromDurable(cz.ID(), citizen.Links{}, doc)
	if err != nil {
		return fmt.Errorf("restore durable: %w", err)
	}
	blob, err := cz.WriteView()
	if err != nil {
		return fmt.Errorf("write view: %w", err)
	}
	v, err := citizen.ParseView(cz.ID(), blob)
	if err != nil {
		return fmt.Errorf("parse view: %w", err)
	}
	if v.Name() != cz.Name() || v.Level() != cz.Level() || v.Skills() != cz.Skills() {
		return fmt.Errorf("view drift: %q/%d vs %q/%d", v.Name(), v.Level(), cz.Name(), cz.Level())
	}
	if again.Name() != cz.Name() || again.Skills() != cz.Skills() {
		return fmt.Errorf("durable drift: %q vs %q", again.Name(), cz.Name())
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func fail(msg string, err error) {
	fmt.Fprintln(os.Stderr, msg, err)
	os.Exit(1)
}
