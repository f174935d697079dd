package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	persistlog "github.com/TeamQuantumFusion/rustaria-sub000/internal/persistence/log"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/catalogs"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/tuning"
)

func main() {
	var (
		dataDir    = flag.String("data", "./data", "client data directory containing journal/")
		file       = flag.String("journal", "", "single journal-*.jsonl.zst to check (optional)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		session    = flag.String("session", "", "only check this session (optional)")
		eps        = flag.Float64("eps", 0, "allowed position error; 0 demands bit-exact replay")
	)
	flag.Parse()

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}

	files := []string{*file}
	if *file == "" {
		files, err = persistlog.Files(*dataDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "list journal:", err)
			os.Exit(1)
		}
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files found under", *dataDir)
		os.Exit(1)
	}

	c := newChecker(cats, tune, *eps)
	c.only = *session
	for _, path := range files {
		if err := replayFile(c, path); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: sessions=%d reconciliations=%d commands=%d blocks=%d\n",
		len(c.terrain), c.reconciled, c.commands, c.blocks)
}

func replayFile(c *checker, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	line := 0
	for sc.Scan() {
		line++
		var e persistlog.Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s:%d: unmarshal: %w", filepath.Base(path), line, err)
		}
		if err := c.apply(e); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
	}
	return sc.Err()
}
