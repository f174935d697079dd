package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/devserver"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/catalogs"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/tuning"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/transport/kcp"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		kcpAddr    = flag.String("kcp", "", "kcp listen address (empty to disable)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		secret     = flag.String("secret", "", "resume token secret (or set RUSTARIA_DEV_SECRET; random when empty)")
		tokenTTL   = flag.Duration("token_ttl", 10*time.Minute, "resume token lifetime")
		ackEvery   = flag.Int("ack_every", 1, "acknowledge every Nth SET_MOVE")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[devserver] ", log.LstdFlags|log.Lmicroseconds)

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
		logger.Fatalf("load tuning: %v", err)
	}

	sec := strings.TrimSpace(*secret)
	if sec == "" {
		sec = strings.TrimSpace(os.Getenv("RUSTARIA_DEV_SECRET"))
	}
	srv, err := devserver.New(devserver.Config{
		Tuning:   tune,
		Catalogs: cats,
		Secret:   sec,
		TokenTTL: *tokenTTL,
		AckEvery: *ackEvery,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatalf("devserver: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if strings.TrimSpace(*kcpAddr) != "" {
		l, err := kcp.Listen(*kcpAddr)
		if err != nil {
			logger.Fatalf("kcp listen: %v", err)
		}
		logger.Printf("kcp listening on %s", l.Addr())
		go func() {
			if err := srv.ServeKCP(ctx, l); err != nil && ctx.Err() == nil {
				logger.Printf("kcp: %v", err)
			}
		}()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/ws", srv.WSHandler())

	hs := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = hs.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := hs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
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
