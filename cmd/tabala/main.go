// Command tabala manages a shared link-organizer store: links grouped
// into collections, collections grouped into workspaces, persisted in a
// storage backend multiple processes can share.
package main

import (
	"context"
	"expvar"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tabala/internal/core"
	"tabala/internal/store"
	"tabala/pkg/domain"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: tabala [-config file] <command> [args]

commands:
  migrate                              bring the stored data up to date
  links                                list links grouped by collection
  links add -url URL [-title T] [-collection ID]
  links rm ID
  links mv ID COLLECTION
  collections                          list collections
  collections add NAME [-color C] [-workspace ID]
  collections rename ID NAME
  collections rm ID
  collections mv ID WORKSPACE
  workspaces                           list workspaces
  workspaces add NAME [-color C] [-description D]
  workspaces update ID [-name N] [-color C] [-description D]
  workspaces rm ID
  workspaces use ID
  watch                                stream changes from other contexts
  metrics                              serve prometheus and expvar metrics`)
}

func run(args []string) error {
	global := flag.NewFlagSet("tabala", flag.ExitOnError)
	configPath := global.String("config", "", "path to tabala.yaml")
	global.Usage = usage
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		usage()
		return fmt.Errorf("missing command")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, err := core.OpenKV(ctx)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeKV(kv)

	prefs, err := store.NewPrefs(cfg.PrefsPath)
	if err != nil {
		return err
	}
	registry := prometheus.NewRegistry()
	metrics, err := store.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		return err
	}
	s, err := store.New(kv,
		store.WithLogger(store.SlogLogger{L: logger}),
		store.WithMetricsRecorder(metrics),
		store.WithPrefs(prefs),
	)
	if err != nil {
		return err
	}
	if err := s.Load(ctx); err != nil {
		return err
	}

	switch rest[0] {
	case "migrate":
		// Load already migrated; report the resulting state.
		counts := s.Counts()
		fmt.Printf("state ready: %d links, %d collections, %d workspaces\n",
			counts.Links, counts.Collections, counts.Workspaces)
		return nil
	case "links":
		return runLinks(ctx, s, rest[1:])
	case "collections":
		return runCollections(ctx, s, rest[1:])
	case "workspaces":
		return runWorkspaces(ctx, s, rest[1:])
	case "watch":
		return runWatch(ctx, s, logger)
	case "metrics":
		return runMetrics(ctx, s, cfg, registry, logger)
	default:
		usage()
		return fmt.Errorf("unknown command %q", rest[0])
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func closeKV(kv domain.KV) {
	if closer, ok := kv.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

func runLinks(ctx context.Context, s *store.Store, args []string) error {
	if len(args) == 0 {
		return printLinks(s)
	}
	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("links add", flag.ExitOnError)
		url := fs.String("url", "", "link URL (required)")
		title := fs.String("title", "", "link title")
		collection := fs.String("collection", "", "target collection id (default inbox)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		link, err := s.AddLink(ctx, domain.NewLink{URL: *url, Title: *title, CollectionID: *collection})
		if err != nil {
			return err
		}
		fmt.Printf("added %s -> %s\n", link.ID, link.CollectionID)
		return nil
	case "rm":
		if len(args) != 2 {
			return fmt.Errorf("usage: links rm ID")
		}
		res := s.RemoveLink(ctx, args[1])
		if !res.Success {
			return fmt.Errorf("%s", res.Error)
		}
		if res.CollectionRemoved {
			fmt.Println("removed link and its emptied collection")
		} else {
			fmt.Println("removed link")
		}
		return nil
	case "mv":
		if len(args) != 3 {
			return fmt.Errorf("usage: links mv ID COLLECTION")
		}
		if res := s.MoveLink(ctx, args[1], args[2]); !res.Success {
			return fmt.Errorf("%s", res.Error)
		}
		fmt.Println("moved link")
		return nil
	default:
		return fmt.Errorf("unknown links subcommand %q", args[0])
	}
}

func printLinks(s *store.Store) error {
	snap := s.Snapshot()
	names := make(map[string]string, len(snap.Collections))
	for _, c := range snap.Collections {
		names[c.ID] = c.Name
	}
	grouped := s.GroupedLinks()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, c := range snap.Collections {
		links := grouped[c.ID]
		if len(links) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s\t(%s)\n", c.Name, c.ID)
		for _, link := range links {
			title := link.Title
			if title == "" {
				title = "-"
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\n", link.ID, title, link.URL)
		}
	}
	return w.Flush()
}

func runCollections(ctx context.Context, s *store.Store, args []string) error {
	if len(args) == 0 {
		snap := s.Snapshot()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tORDER\tWORKSPACE")
		for _, c := range snap.Collections {
			workspace := c.WorkspaceID
			if workspace == "" {
				workspace = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.ID, c.Name, c.Order, workspace)
		}
		return w.Flush()
	}
	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("collections add", flag.ExitOnError)
		color := fs.String("color", "", "hex color")
		workspace := fs.String("workspace", "", "workspace id (default workspace when empty)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return fmt.Errorf("usage: collections add NAME [-color C] [-workspace ID]")
		}
		c, err := s.AddCollection(ctx, domain.NewCollection{Name: fs.Arg(0), Color: *color, WorkspaceID: *workspace})
		if err != nil {
			return err
		}
		fmt.Printf("added collection %s\n", c.ID)
		return nil
	case "rename":
		if len(args) != 3 {
			return fmt.Errorf("usage: collections rename ID NAME")
		}
		if res := s.RenameCollection(ctx, args[1], args[2]); !res.Success {
			return fmt.Errorf("%s", res.Error)
		}
		fmt.Println("renamed collection")
		return nil
	case "rm":
		if len(args) != 2 {
			return fmt.Errorf("usage: collections rm ID")
		}
		if res := s.RemoveCollection(ctx, args[1]); !res.Success {
			return fmt.Errorf("%s", res.Error)
		}
		fmt.Println("removed collection; its links moved to the inbox")
		return nil
	case "mv":
		if len(args) != 3 {
			return fmt.Errorf("usage: collections mv ID WORKSPACE")
		}
		if res := s.MoveCollectionToWorkspace(ctx, args[1], args[2]); !res.Success {
			return fmt.Errorf("%s", res.Error)
		}
		fmt.Println("moved collection")
		return nil
	default:
		return fmt.Errorf("unknown collections subcommand %q", args[0])
	}
}

func runWorkspaces(ctx context.Context, s *store.Store, args []string) error {
	if len(args) == 0 {
		snap := s.Snapshot()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tORDER\tACTIVE")
		for _, ws := range snap.Workspaces {
			active := ""
			if ws.ID == snap.ActiveWorkspaceID {
				active = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", ws.ID, ws.Name, ws.Order, active)
		}
		return w.Flush()
	}
	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("workspaces add", flag.ExitOnError)
		color := fs.String("color", "#6366f1", "hex color")
		description := fs.String("description", "", "workspace description")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return fmt.Errorf("usage: workspaces add NAME [-color C] [-description D]")
		}
		ws, err := s.AddWorkspace(ctx, domain.NewWorkspace{Name: fs.Arg(0), Color: *color, Description: *description})
		if err != nil {
			return err
		}
		fmt.Printf("added workspace %s\n", ws.ID)
		return nil
	case "update":
		fs := flag.NewFlagSet("workspaces update", flag.ExitOnError)
		name := fs.String("name", "", "new name")
		color := fs.String("color", "", "hex color")
		description := fs.String("description", "", "workspace description")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return fmt.Errorf("usage: workspaces update ID [-name N] [-color C] [-description D]")
		}
		var patch domain.WorkspacePatch
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "name":
				patch.Name = name
			case "color":
				patch.Color = color
			case "description":
				patch.Description = description
			}
		})
		if res := s.UpdateWorkspace(ctx, fs.Arg(0), patch); !res.Success {
			return fmt.Errorf("%s", res.Error)
		}
		fmt.Println("updated workspace")
		return nil
	case "rm":
		if len(args) != 2 {
			return fmt.Errorf("usage: workspaces rm ID")
		}
		if res := s.RemoveWorkspace(ctx, args[1]); !res.Success {
			return fmt.Errorf("%s", res.Error)
		}
		fmt.Println("removed workspace; its collections moved to the default workspace")
		return nil
	case "use":
		if len(args) != 2 {
			return fmt.Errorf("usage: workspaces use ID")
		}
		if res := s.SetActiveWorkspace(args[1]); !res.Success {
			return fmt.Errorf("%s", res.Error)
		}
		fmt.Println("switched workspace")
		return nil
	default:
		return fmt.Errorf("unknown workspaces subcommand %q", args[0])
	}
}

func runWatch(ctx context.Context, s *store.Store, logger *slog.Logger) error {
	if err := s.Start(); err != nil {
		return err
	}
	defer s.Close()
	logger.Info("watching for changes from other contexts")

	last := s.Counts()
	fmt.Printf("current: %d links, %d collections, %d workspaces\n", last.Links, last.Collections, last.Workspaces)
	<-ctx.Done()
	final := s.Counts()
	fmt.Printf("final: %d links, %d collections, %d workspaces\n", final.Links, final.Collections, final.Workspaces)
	return nil
}

func runMetrics(ctx context.Context, s *store.Store, cfg *Config, registry *prometheus.Registry, logger *slog.Logger) error {
	if err := s.Start(); err != nil {
		return err
	}
	defer s.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())

	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	logger.Info("metrics listening", "addr", cfg.MetricsAddr)

	select {
	case <-ctx.Done():
		return server.Close()
	case err := <-errCh:
		return err
	}
}
