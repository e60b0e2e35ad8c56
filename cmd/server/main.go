package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"citydev.io/internal/metrics"
	persistlog "citydev.io/internal/persistence/log"
	"citydev.io/internal/persistence/snapshot"
	"citydev.io/internal/sim/catalogs"
	"citydev.io/internal/sim/tuning"
	"citydev.io/internal/sim/world"
	"citydev.io/internal/transport/httpapi"
	"citydev.io/internal/transport/mcp"
	"citydev.io/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "city_1", "world id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		seedFile   = flag.String("seed_file", "", "seed world yaml (default: built-in seed)")
		disableDB  = flag.Bool("disable_db", false, "disable the read-model index (ticks, actions, audits, snapshots)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")

		corsOrigins = flag.String("cors_origins", "http://localhost:5173", "comma-separated allowed CORS origins")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}

	tune, err := tuning.Load(tp)
	if err != nil {
		// The built-in defaults are a complete tuning; only a broken file is fatal.
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	seed, err := loadSeed(*seedFile)
	if err != nil {
		logger.Fatalf("load seed: %v", err)
	}

	idx, err := openIndex(context.Background(), worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	defer idx.Close()
	if err := idx.UpsertCatalogs(context.Background(), seed, tune); err != nil {
		logger.Printf("index backend: upsert catalogs: %v", err)
	}
	logger.Printf("index backend: %s", idx.Backend())

	mirror, err := buildMirrorRuntime(context.Background(), *dataDir, log.New(os.Stdout, "[mirror] ", log.LstdFlags))
	if err != nil {
		logger.Fatalf("init object mirror: %v", err)
	}
	defer mirror.Close()

	cfg := world.ConfigFromTuning(*worldID, tune)
	var w *world.World
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		if w, err = world.NewFromSnapshot(cfg, snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), w.CurrentTick())
	} else {
		if w, err = world.New(cfg, seed); err != nil {
			logger.Fatalf("world: %v", err)
		}
		logger.Printf("fresh world=%s seed_digest=%s", *worldID, seed.Digest)
	}
	w.SetLogger(log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds))

	ctx, cancel := signalContext()
	defer cancel()

	logOpts := persistlog.LoggerOptions{}
	if mirror.enabled {
		logOpts.RotateLayout = mirror.rotateLayout
		logOpts.OnClose = mirror.Enqueue
	}
	tickLog := persistlog.NewTickLoggerWithOptions(worldDir, logOpts)
	auditLog := persistlog.NewAuditLoggerWithOptions(worldDir, logOpts)
	defer tickLog.Close()
	defer auditLog.Close()
	w.SetTickLogger(multiTickLogger{tickLog, idx})
	w.SetAuditLogger(multiAuditLogger{auditLog, idx})

	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	sw := &snapshotWriter{worldDir: worldDir, idx: idx, mirror: mirror, logger: logger}
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		sw.run(ctx, snapCh)
	}()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("world stopped: %v", err)
		}
	}()

	collector := metrics.NewCollector(metrics.Sources{
		WorldID: *worldID,
		World:   w.Metrics,
		Mirror:  mirror.Stats,
		Index:   idx.Stats,
	})
	reg, err := metrics.NewRegistry(collector)
	if err != nil {
		logger.Fatalf("metrics: %v", err)
	}

	actionTimeout := time.Duration(tune.ActionTimeoutMs) * time.Millisecond
	var mcpHandler http.Handler
	if envBool("CD_ENABLE_MCP", true) {
		ms, err := mcp.NewServer(mcp.Config{World: w, ActionTimeout: actionTimeout, Logger: log.New(os.Stdout, "[mcp] ", log.LstdFlags)})
		if err != nil {
			logger.Fatalf("mcp: %v", err)
		}
		mcpHandler = ms.Handler()
	}

	api := httpapi.NewServer(w, httpapi.Options{
		ActionTimeout: actionTimeout,
		CORSOrigins:   splitList(*corsOrigins),
		ActionsRPS:    envFloat("CD_ACTIONS_RPS", 20),
		ActionsBurst:  envInt("CD_ACTIONS_BURST", 40),
		EnableAdmin:   envBool("CD_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
		EnablePprof:   envBool("CD_ENABLE_PPROF_HTTP", false),
		Metrics:       metrics.Handler(reg),
		WebSocket:     ws.NewServer(w, ws.OriginChecker(splitList(*corsOrigins)), log.New(os.Stdout, "[ws] ", log.LstdFlags)).Handler(),
		MCP:           mcpHandler,
		AdminExtra: func() map[string]any {
			return map[string]any{"index": idx.Stats(), "mirror": mirror.Stats()}
		},
		Logger: log.New(os.Stdout, "[http] ", log.LstdFlags|log.Lmicroseconds),
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("ListenAndServe: %v", err)
		cancel()
	}
	<-worldDone
	<-writerDone
	logger.Printf("stopped at tick=%d", w.CurrentTick())
}

func loadSeed(path string) (*catalogs.Seed, error) {
	if strings.TrimSpace(path) == "" {
		return catalogs.Default()
	}
	return catalogs.Load(path)
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

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
