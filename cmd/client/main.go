package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/client"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/persistence/indexdb"
	persistlog "github.com/TeamQuantumFusion/rustaria-sub000/internal/persistence/log"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/predict"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/protocol"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/catalogs"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/tuning"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/transport"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/transport/kcp"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", "ws://localhost:8080/v1/ws", "server address (ws url, or host:port with -transport kcp)")
		transp     = flag.String("transport", "ws", "ws or kcp")
		name       = flag.String("name", "client", "client name")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "journal and index directory")
		duration   = flag.Duration("duration", 10*time.Second, "how long to play (0 = until interrupted)")
		resume     = flag.String("resume", "", "resume token from an earlier run")
		disableDB  = flag.Bool("disable_db", false, "skip the sqlite reconciliation index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[client] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	runID := uuid.NewString()
	journal := persistlog.NewJournal(*dataDir, runID, logger)
	observers := predict.Observers{journal}
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		if err := os.MkdirAll(*dataDir, 0o755); err != nil {
			logger.Fatalf("data dir: %v", err)
		}
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index.sqlite"), runID)
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		observers = append(observers, idx)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	conn, err := dial(ctx, *transp, *addr, tune)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	rt, err := client.New(conn, client.Config{
		Tuning:      tune,
		Catalogs:    cats,
		Name:        *name,
		ResumeToken: *resume,
		Observer:    observers,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatalf("client: %v", err)
	}

	go script(ctx, rt)

	err = rt.Run(ctx)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		logger.Printf("run: %v", err)
	}

	ctrl := rt.Controller()
	logger.Printf("stopped tick=%d binding=%s pending=%d resume_token=%s",
		ctrl.Tick(), ctrl.Binding(), len(ctrl.Pending()), rt.ResumeToken())

	if err := journal.Close(); err != nil {
		logger.Printf("journal close: %v", err)
	}
	if n := journal.Failed(); n > 0 {
		logger.Printf("journal dropped %d entries", n)
	}
	if idx != nil {
		st := idx.Stats()
		// Close drains the writer queue before the summary reads it back.
		if err := idx.Close(); err != nil {
			logger.Printf("index close: %v", err)
		}
		if err := printSummary(filepath.Join(*dataDir, "index.sqlite"), runID, st); err != nil {
			logger.Printf("summary: %v", err)
		}
	}
}

func dial(ctx context.Context, kind, addr string, tune tuning.Tuning) (transport.Conn, error) {
	opt := transport.Options{
		SendQueue:  tune.Net.SendQueue,
		InboxQueue: tune.Net.InboxQueue,
		Logger:     log.New(os.Stdout, "[transport] ", log.LstdFlags|log.Lmicroseconds),
	}
	writeWait := time.Duration(tune.Net.WriteWaitMs) * time.Millisecond
	switch kind {
	case "ws":
		return ws.Dial(ctx, addr, protocol.DecodeInbound, opt, writeWait)
	case "kcp":
		return kcp.Dial(addr, protocol.DecodeInbound, opt, writeWait)
	}
	return nil, fmt.Errorf("unknown transport %q", kind)
}

// script plays a fixed input loop: walk right, jump, walk back, and click
// around the player now and then.
func script(ctx context.Context, rt *client.Runtime) {
	steps := []predict.InputEvent{
		predict.KeyEvent{Key: predict.KeyRight, Pressed: true},
		predict.KeyEvent{Key: predict.KeyJump, Pressed: true},
		predict.KeyEvent{Key: predict.KeyJump, Pressed: false},
		predict.KeyEvent{Key: predict.KeyRight, Pressed: false},
		predict.PointerEvent{Button: predict.ButtonLeft, X: 0.55, Y: 0.45},
		predict.KeyEvent{Key: predict.KeyLeft, Pressed: true},
		predict.KeyEvent{Key: predict.KeyLeft, Pressed: false},
		predict.PointerEvent{Button: predict.ButtonRight, X: 0.55, Y: 0.45},
		predict.PointerEvent{Button: predict.ButtonMiddle, X: 0.45, Y: 0.4},
	}
	ticker := time.NewTicker(400 * time.Millisecond)
	defer ticker.Stop()
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.Input(steps[i%len(steps)])
		}
	}
}

func printSummary(path, runID string, st indexdb.Stats) error {
	idx, err := indexdb.OpenSQLite(path, "")
	if err != nil {
		return err
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sum, err := idx.Summary(ctx, runID)
	if err != nil {
		return err
	}
	fmt.Printf("session %s\n", runID)
	fmt.Printf("  reconciliations=%d replayed=%d max_remaining=%d mean_auth_error=%.6f\n",
		sum.Reconciliations, sum.Replayed, sum.MaxRemaining, sum.MeanAuthError)
	fmt.Printf("  corrections=%d snaps=%d max_drift=%.6f binds=%d unbinds=%d\n",
		sum.Corrections, sum.Snaps, sum.MaxDrift, sum.Binds, sum.Unbinds)
	fmt.Printf("  index drops reconcile=%d correct=%d binding=%d\n",
		st.DropReconcileTotal, st.DropCorrectTotal, st.DropBindingTotal)
	return nil
}
