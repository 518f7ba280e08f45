package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"aetherlib.ai/internal/persistence/archive"
	persistlog "aetherlib.ai/internal/persistence/log"
	"aetherlib.ai/internal/persistence/snapshot"
	"aetherlib.ai/internal/sim/aether"
	"aetherlib.ai/internal/sim/catalogs"
	"aetherlib.ai/internal/sim/density"
	"aetherlib.ai/internal/sim/geom"
	"aetherlib.ai/internal/sim/tuning"
	"aetherlib.ai/internal/sim/worldgen"
	"aetherlib.ai/internal/transport/admin"
	"aetherlib.ai/internal/transport/ws"
)

// serverEnv holds deployment switches that are not simulation tuning.
type serverEnv struct {
	DeployEnv    string `env:"DEPLOY_ENV"`
	AdminHTTP    *bool  `env:"AETHER_ENABLE_ADMIN_HTTP"`
	PprofHTTP    bool   `env:"AETHER_ENABLE_PPROF_HTTP"`
	IndexBackend string `env:"AETHER_INDEX_BACKEND" envDefault:"sqlite"`
}

func (e serverEnv) adminEnabled() bool {
	if e.AdminHTTP != nil {
		return *e.AdminHTTP
	}
	switch strings.ToLower(strings.TrimSpace(e.DeployEnv)) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "overworld", "world id")
		seed       = flag.Int64("seed", 0, "world seed (default: tuning seed; used only when starting fresh)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index")
		watch      = flag.Bool("watch", true, "reload catalogs when files under -configs change")
		natural    = flag.Int("spawn_natural", 0, "spawn this many naturally rolled nodes on a fresh world")
		logLevel   = flag.String("log_level", "info", "debug, info, warn or error")
		devLog     = flag.Bool("dev_log", false, "human-readable console logging")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger, err := newLogger(*logLevel, *devLog)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	var senv serverEnv
	if err := env.Parse(&senv); err != nil {
		logger.Fatal("parse env", zap.Error(err))
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("tuning not found; using defaults", zap.String("path", tp))
		tune, err = tuning.Load("")
	}
	if err != nil {
		logger.Fatal("load tuning", zap.Error(err))
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	snapDir := filepath.Join(worldDir, "snapshots")
	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		logger.Fatal("data dir", zap.Error(err))
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		if p, ok, err := snapshot.Latest(snapDir); err != nil {
			logger.Warn("scan snapshots", zap.Error(err))
		} else if ok {
			snapshotToLoad = p
		}
	}
	var resume *snapshot.SnapshotV1
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatal("read snapshot", zap.Error(err))
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatal("snapshot world id mismatch", zap.String("flag", *worldID), zap.String("snapshot", snap.Header.WorldID))
		}
		resume = &snap
	}

	// A resumed world keeps its original seed and tick rate.
	worldSeed := *seed
	tickRate := tune.TickRateHz
	if resume != nil {
		worldSeed = resume.Seed
		if resume.TickRate > 0 {
			tickRate = resume.TickRate
		}
	}
	wcfg, err := tune.WorldConfig(worldSeed)
	if err != nil {
		logger.Fatal("world config", zap.Error(err))
	}
	corrCfg, err := tune.CorruptionConfig()
	if err != nil {
		logger.Fatal("corruption config", zap.Error(err))
	}
	nodeCfg, err := tune.NodeConfig()
	if err != nil {
		logger.Fatal("node config", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	world := worldgen.New(wcfg, logger.Named("world"))
	rt, err := aether.New(aether.Config{
		WorldID:            *worldID,
		Seed:               wcfg.Seed,
		TickRateHz:         tickRate,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
		Workers:            tune.Workers,
		Density:            density.Options{ClampNegative: tune.ClampNegative},
		Corruption:         corrCfg,
		Node:               nodeCfg,
	}, world, aether.NewMetrics(reg), logger.Named("aether"))
	if err != nil {
		logger.Fatal("runtime", zap.Error(err))
	}

	idx, err := openRuntimeIndex(worldDir, senv.IndexBackend, *disableDB, logger.Named("index"))
	if err != nil {
		logger.Fatal("open index backend", zap.Error(err))
	}
	if idx != nil {
		defer idx.Close()
		rt.SetReloadHook(idx.RecordRuleLoad)
	}

	tickLog := persistlog.NewTickLogger(worldDir)
	auditLog := persistlog.NewAuditLogger(worldDir)
	defer tickLog.Close()
	defer auditLog.Close()
	rt.SetTickLogger(multiTickLogger{a: tickLog, b: indexOrNil(idx)})
	rt.SetAuditLogger(multiAuditLogger{a: auditLog, b: indexOrNil(idx)})

	cats, err := catalogs.Load(*configDir, logger.Named("catalogs"))
	if err != nil {
		logger.Fatal("load catalogs", zap.Error(err))
	}
	rt.Reload(cats)

	if resume != nil {
		if resume.RulesDigest != "" && resume.RulesDigest != cats.Digest {
			logger.Warn("snapshot was taken under different rules",
				zap.String("snapshot_digest", resume.RulesDigest), zap.String("loaded_digest", cats.Digest))
		}
		if err := rt.ImportSnapshot(*resume); err != nil {
			logger.Fatal("import snapshot", zap.Error(err))
		}
		logger.Info("resumed from snapshot", zap.String("file", filepath.Base(snapshotToLoad)), zap.Uint64("tick", rt.CurrentTick()))
	} else if *natural > 0 {
		spawnNatural(rt, wcfg, *natural, logger)
	}

	ctx, cancel := signalContext()
	defer cancel()

	var snapMu sync.Mutex
	writeSnap := func(snap snapshot.SnapshotV1) (string, error) {
		snapMu.Lock()
		defer snapMu.Unlock()
		path := filepath.Join(snapDir, snapshot.FileName(snap.Header.Tick))
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			return "", err
		}
		if idx != nil {
			idx.RecordSnapshot(path, snap)
		}
		if epoch, archived, ok, err := archive.ArchiveEpochSnapshot(worldDir, path, snap, tune.ArchiveEveryTicks); err != nil {
			logger.Warn("archive snapshot", zap.Uint64("tick", snap.Header.Tick), zap.Error(err))
		} else if ok {
			logger.Info("archived epoch", zap.Int("epoch", epoch), zap.String("path", archived))
		}
		if n, err := archive.Prune(snapDir, tune.KeepSnapshots); err != nil {
			logger.Warn("prune snapshots", zap.Error(err))
		} else if n > 0 {
			logger.Debug("pruned snapshots", zap.Int("removed", n))
		}
		return path, nil
	}

	snapCh := make(chan snapshot.SnapshotV1, 2)
	rt.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				if _, err := writeSnap(snap); err != nil {
					logger.Warn("snapshot write", zap.Uint64("tick", snap.Header.Tick), zap.Error(err))
				}
			}
		}
	}()

	if *watch {
		w, err := catalogs.NewWatcher(*configDir, catalogs.DefaultDebounce, func() {
			if err := rt.ReloadFrom(*configDir); err != nil {
				logger.Warn("catalog reload", zap.Error(err))
			}
		}, logger.Named("watcher"))
		if err != nil {
			logger.Warn("catalog watcher disabled", zap.Error(err))
		} else {
			go func() {
				if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("catalog watcher stopped", zap.Error(err))
				}
			}()
		}
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("runtime stopped", zap.Error(err))
		}
	}()

	wsSrv := ws.NewServer(rt, ws.Config{
		QueriesPerSecond: tune.Transport.QueriesPerSecond,
		QueryBurst:       tune.Transport.QueryBurst,
	}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	if senv.adminEnabled() {
		admin.NewServer(rt, admin.Hooks{
			Reload: func() (uint64, error) {
				if err := rt.ReloadFrom(*configDir); err != nil {
					return 0, err
				}
				return rt.Rules().Version, nil
			},
			Snapshot: func(ctx context.Context) (string, uint64, error) {
				snap := rt.ExportSnapshot()
				path, err := writeSnap(snap)
				return path, snap.Header.Tick, err
			},
			Sessions: wsSrv.Sessions,
		}, logger).Register(mux)
	} else {
		logger.Info("admin endpoints disabled (AETHER_ENABLE_ADMIN_HTTP=false)")
	}
	if senv.PprofHTTP {
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

	logger.Info("listening", zap.String("addr", *addr), zap.String("world", *worldID), zap.Int64("seed", wcfg.Seed))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("ListenAndServe", zap.Error(err))
	}

	<-runDone
	// Final snapshot so a restart resumes where we stopped.
	if path, err := writeSnap(rt.ExportSnapshot()); err != nil {
		logger.Warn("final snapshot", zap.Error(err))
	} else {
		logger.Info("final snapshot written", zap.String("path", path))
	}
}

func newLogger(level string, dev bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// spawnNatural places n nodes on a deterministic spiral of region centers.
func spawnNatural(rt *aether.Runtime, wcfg worldgen.Config, n int, log *zap.Logger) {
	step := wcfg.RegionSize
	x, z, dx, dz := 0, 0, 0, -1
	for i := 0; i < n; i++ {
		info, err := rt.SpawnNatural(geom.Vec3i{X: x*step + step/2, Y: 64, Z: z*step + step/2})
		if err != nil {
			log.Warn("spawn natural node", zap.Error(err))
			return
		}
		log.Debug("spawned node", zap.String("id", info.ID), zap.Stringer("type", info.State.Type))
		if x == z || (x < 0 && x == -z) || (x > 0 && x == 1-z) {
			dx, dz = -dz, dx
		}
		x, z = x+dx, z+dz
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
