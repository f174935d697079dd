package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/persistence/indexdb"
	persistlog "github.com/TeamQuantumFusion/rustaria-sub000/internal/persistence/log"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "journal":
			journalCmd(os.Args[2:])
			return
		case "health":
			healthCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func indexPath(dataDir, dbPath string) string {
	if p := strings.TrimSpace(dbPath); p != "" {
		return p
	}
	return filepath.Join(dataDir, "index.sqlite")
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "client data directory")
	dbPath := fs.String("db", "", "sqlite index path (optional)")
	_ = fs.Parse(args)

	idx, err := indexdb.OpenSQLite(indexPath(*dataDir, *dbPath), "")
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ids, err := idx.Sessions(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sessions:", err)
		os.Exit(1)
	}
	for _, id := range ids {
		fmt.Println(id)
	}
}

// journalCmd prints journal entries, or per-kind counts with -count.
func journalCmd(args []string) {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "client data directory")
	session := fs.String("session", "", "session filter (optional)")
	kind := fs.String("kind", "", "entry kind filter: command|reconcile|correct|block|bind|unbind (optional)")
	count := fs.Bool("count", false, "print counts per kind instead of entries")
	_ = fs.Parse(args)

	files, err := persistlog.Files(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files under", *dataDir)
		os.Exit(2)
	}

	counts := map[string]int{}
	for _, path := range files {
		err := readJournal(path, func(e persistlog.Entry) {
			if *session != "" && e.Session != *session {
				return
			}
			if *kind != "" && e.Kind != *kind {
				return
			}
			if *count {
				counts[e.Kind]++
				return
			}
			printJSON(e)
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
	}
	if *count {
		kinds := make([]string, 0, len(counts))
		for k := range counts {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Printf("%s\t%d\n", k, counts[k])
		}
	}
}

func readJournal(path string, fn func(persistlog.Entry)) error {
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
	for sc.Scan() {
		var e persistlog.Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		fn(e)
	}
	return sc.Err()
}
