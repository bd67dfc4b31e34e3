package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"colonycraft.ai/internal/persistence/indexdb"
	persistlog "colonycraft.ai/internal/persistence/log"
	"colonycraft.ai/internal/protocol"
	"colonycraft.ai/internal/sim/catalogs"
	"colonycraft.ai/internal/sim/colony"
	"colonycraft.ai/internal/sim/tuning"
	"colonycraft.ai/internal/transport/admin"
	"colonycraft.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		colonyID   = flag.String("colony", "colony_1", "colony id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to colony.yaml (default: <configs>/colony.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the secondary index (audits + catalogs + snapshot metadata)")

		storeBackend = flag.String("store", "sqlite", "citizen store backend: sqlite, postgres or none")
		pgDSN        = flag.String("pg_dsn", "", "postgres dsn for -store=postgres (or set CC_PG_DSN)")

		loadLatest   = flag.Bool("load_latest_snapshot", true, "restore the newest snapshot from the data dir on start")
		seedCitizens = flag.Int("seed_citizens", 0, "citizens to spawn when the colony starts empty")
	)
	flag.Parse()

	logger := newLogger("server")

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "colony.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if tune.ProtocolVersion != protocol.Version {
		logger.Fatalf("tuning protocol_version %q, server speaks %q", tune.ProtocolVersion, protocol.Version)
	}

	colonyDir := filepath.Join(*dataDir, "colonies", *colonyID)
	if err := os.MkdirAll(colonyDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	idx, err := openRuntimeIndex(colonyDir, *colonyID, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	store, ownStore, err := openCitizenStore(ctx, *storeBackend, *pgDSN, colonyDir, idx)
	if err != nil {
		logger.Fatalf("open citizen store: %v", err)
	}
	mirror, err := buildSnapshotMirror(ctx, *dataDir, newLogger("mirror"))
	if err != nil {
		logger.Fatalf("init snapshot mirror: %v", err)
	}
	auditLog := persistlog.NewAuditLogger(colonyDir)

	hub := ws.NewServer(*colonyID, ws.Options{
		MaxSubscribers: tune.Replication.MaxSubscribers,
		SendBuffer:     tune.Replication.SendBuffer,
		IdleTimeout:    time.Duration(tune.Replication.IdleTimeoutSeconds) * time.Second,
	}, newLogger("replicate"))

	sinks := colony.AuditSinks{auditLog}
	var recorders colony.SnapshotRecorders
	if idx != nil {
		sinks = append(sinks, idx)
		recorders = append(recorders, idx)
	}
	if mirror != nil {
		recorders = append(recorders, mirror)
	}
	deps := colony.Deps{Publisher: hub, Audit: sinks, Snapshots: recorders}
	if store != nil {
		deps.Store = store
	}

	cfg := colony.ConfigFromTuning(*colonyID, filepath.Join(colonyDir, "snapshots"), tune)
	c, err := colony.New(cfg, cats, newLogger("colony"), deps)
	if err != nil {
		logger.Fatalf("colony: %v", err)
	}

	// Snapshot first for buildings and tick, then the store for the freshest
	// citizen documents.
	if *loadLatest {
		if _, err := c.RestoreLatestSnapshot(); err != nil {
			logger.Fatalf("restore snapshot: %v", err)
		}
	}
	if _, err := c.LoadFromStore(ctx); err != nil {
		logger.Fatalf("load citizens: %v", err)
	}
	if len(c.Citizens()) == 0 && *seedCitizens > 0 {
		base := time.Now().UnixNano()
		for i := 0; i < *seedCitizens; i++ {
			if _, err := c.SpawnCitizen(base + int64(i)); err != nil {
				logger.Fatalf("seed citizen: %v", err)
			}
		}
		logger.Printf("seeded %d citizens", *seedCitizens)
	}

	if idx != nil {
		if err := idx.UpsertCatalogs(ctx, *configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	colonyDone := make(chan struct{})
	go func() {
		defer close(colonyDone)
		if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("colony stopped: %v", err)
		}
	}()

	metricsSrc := admin.MetricsSources{
		ColonyID:    *colonyID,
		Colony:      c.Metrics,
		Replication: hub.Stats,
	}
	if mirror != nil {
		metricsSrc.Mirror = mirror.Stats
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", admin.MetricsHandler(metricsSrc))
	mux.HandleFunc("/v1/replicate", hub.Handler())

	if envBool("CC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		var audits admin.AuditQuerier
		if s, ok := idx.(*indexdb.SQLiteIndex); ok {
			audits = s
		}
		admin.New(c, admin.Options{
			AllowRemote: envBool("CC_ADMIN_ALLOW_REMOTE", false),
			Audits:      audits,
		}, newLogger("admin")).Register(mux)
	} else {
		logger.Printf("admin endpoints disabled (CC_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("CC_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("colony %s listening on %s (store=%s citizens=%d tick=%d)", *colonyID, *addr, *storeBackend, len(c.Citizens()), c.CurrentTick())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("ListenAndServe: %v", err)
	}

	// The colony's final persist and snapshot need every sink still open.
	cancel()
	<-colonyDone
	mirror.Close()
	if err := auditLog.Close(); err != nil {
		logger.Printf("close audit log: %v", err)
	}
	if ownStore {
		if err := store.Close(); err != nil {
			logger.Printf("close store: %v", err)
		}
	}
	if idx != nil {
		if err := idx.Close(); err != nil {
			logger.Printf("close index: %v", err)
		}
	}
	logger.Printf("shutdown complete")
}

func newLogger(component string) *log.Logger {
	return log.New(os.Stdout, "["+component+"] ", log.LstdFlags|log.Lmicroseconds)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
