package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"colonycraft.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			getCmd("state", "/admin/v1/state", os.Args[2:])
			return
		case "citizens":
			getCmd("citizens", "/admin/v1/citizens", os.Args[2:])
			return
		case "snapshot":
			postCmd("snapshot", "/admin/v1/snapshot", os.Args[2:])
			return
		case "persist":
			postCmd("persist", "/admin/v1/persist", os.Args[2:])
			return
		case "spawn":
			spawnCmd(os.Args[2:])
			return
		case "remove":
			removeCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints each colony under the data dir with its newest snapshot.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "colonies")
	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		latest, err := snapshot.Latest(filepath.Join(base, name, "snapshots"))
		if err != nil || latest == "" {
			fmt.Printf("%s\t-\n", name)
			continue
		}
		h, err := snapshot.ReadHeader(latest)
		if err != nil {
			fmt.Printf("%s\t%s (unreadable: %v)\n", name, filepath.Base(latest), err)
			continue
		}
		fmt.Printf("%s\ttick=%d\t%s\n", name, h.Tick, filepath.Base(latest))
	}
}

func colonyIndexPath(dataDir, colonyID, dbPath string) string {
	if p := strings.TrimSpace(dbPath); p != "" {
		return p
	}
	if strings.TrimSpace(colonyID) == "" {
		fmt.Fprintln(os.Stderr, "missing -colony or -db")
		os.Exit(2)
	}
	return filepath.Join(dataDir, "colonies", colonyID, "index", "colony.sqlite")
}
