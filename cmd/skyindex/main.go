package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kjdrag/skyindex/internal/bluesky"
	"github.com/kjdrag/skyindex/internal/config"
	"github.com/kjdrag/skyindex/internal/domain"
	"github.com/kjdrag/skyindex/internal/firehose"
	"github.com/kjdrag/skyindex/internal/sqlite"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// newService opens the store and wires up the index service. The caller must
// close the returned store.
func newService(cfg *config.Config, logger *slog.Logger) (*domain.IndexService, *sqlite.Store, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	store, err := sqlite.NewStore(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	profiles := bluesky.NewClient(cfg.AppViewURL)
	return domain.NewIndexService(store, profiles, logger), store, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

var rootCmd = &cobra.Command{
	Use:           "skyindex",
	Short:         "Capture, index and query Bluesky firehose conversation threads",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	captureSeconds int
	captureOut     string
	captureLangs   []string
	includeReplies bool
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture posts from the firehose into an NDJSON log",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		seconds := cfg.Capture.Seconds
		if cmd.Flags().Changed("seconds") {
			seconds = captureSeconds
		}
		dest := cfg.CapturePath
		if cmd.Flags().Changed("out") {
			dest = captureOut
		}
		langs := cfg.Capture.Langs
		if cmd.Flags().Changed("langs") {
			langs = captureLangs
		}
		replies := cfg.Capture.IncludeReplies
		if cmd.Flags().Changed("include-replies") {
			replies = includeReplies
		}

		ctx, cancel := signalContext()
		defer cancel()

		logger := newLogger()
		policy := firehose.NewCapturePolicy(langs, replies)
		ingester := firehose.NewIngester(cfg.FirehoseURL, policy, logger)

		count, err := ingester.Capture(ctx, time.Duration(seconds)*time.Second, dest)
		if err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		fmt.Printf("wrote %d posts to %s\n", count, dest)
		return nil
	},
}

var ingestIn string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load a capture log into the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		path := cfg.CapturePath
		if cmd.Flags().Changed("in") {
			path = ingestIn
		}

		ctx, cancel := signalContext()
		defer cancel()

		service, store, err := newService(cfg, newLogger())
		if err != nil {
			return err
		}
		defer store.Close()

		count, err := service.IngestLog(ctx, path)
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		fmt.Printf("indexed %d posts from %s\n", count, path)
		return nil
	},
}

var (
	queryThreads int
	queryLangs   []string
)

var queryCmd = &cobra.Command{
	Use:   "query TOPIC",
	Short: "Find the busiest threads mentioning a topic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		service, store, err := newService(cfg, newLogger())
		if err != nil {
			return err
		}
		defer store.Close()

		threads, err := service.ThreadsByTopic(ctx, args[0], queryThreads, queryLangs)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}

		printThreads(threads)
		return nil
	},
}

var resolveHandleCmd = &cobra.Command{
	Use:   "resolve-handle DID",
	Short: "Resolve an author DID to a handle and back-fill the index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		service, store, err := newService(cfg, newLogger())
		if err != nil {
			return err
		}
		defer store.Close()

		handle, ok, err := service.ResolveHandle(ctx, args[0])
		if err != nil {
			return fmt.Errorf("resolve handle: %w", err)
		}
		if !ok {
			fmt.Printf("no handle found for %s\n", args[0])
			return nil
		}
		fmt.Printf("%s -> %s\n", args[0], handle)
		return nil
	},
}

var runTopic string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture, ingest, and optionally query in one session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		logger := newLogger()
		policy := firehose.NewCapturePolicy(cfg.Capture.Langs, cfg.Capture.IncludeReplies)
		ingester := firehose.NewIngester(cfg.FirehoseURL, policy, logger)

		captured, err := ingester.Capture(ctx, time.Duration(cfg.Capture.Seconds)*time.Second, cfg.CapturePath)
		if err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		fmt.Printf("wrote %d posts to %s\n", captured, cfg.CapturePath)

		service, store, err := newService(cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		indexed, err := service.IngestLog(ctx, cfg.CapturePath)
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		fmt.Printf("indexed %d posts\n", indexed)

		if runTopic != "" {
			threads, err := service.ThreadsByTopic(ctx, runTopic, 10, nil)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			printThreads(threads)
		}
		return nil
	},
}

func printThreads(threads []domain.Thread) {
	if len(threads) == 0 {
		fmt.Println("no threads found")
		return
	}
	for i, t := range threads {
		if i > 0 {
			fmt.Println("---")
		}
		for _, line := range t.Transcript() {
			fmt.Println(line)
		}
	}
}

func init() {
	captureCmd.Flags().IntVar(&captureSeconds, "seconds", 30, "capture duration in seconds")
	captureCmd.Flags().StringVar(&captureOut, "out", "", "destination capture log path")
	captureCmd.Flags().StringSliceVar(&captureLangs, "langs", nil, "language filter (empty accepts all)")
	captureCmd.Flags().BoolVar(&includeReplies, "include-replies", true, "capture reply posts as well as roots")

	ingestCmd.Flags().StringVar(&ingestIn, "in", "", "capture log path to ingest")

	queryCmd.Flags().IntVar(&queryThreads, "threads", 10, "maximum number of threads to return")
	queryCmd.Flags().StringSliceVar(&queryLangs, "langs", nil, "restrict matches to these language codes")

	runCmd.Flags().StringVar(&runTopic, "topic", "", "topic to query after ingesting")

	rootCmd.AddCommand(captureCmd, ingestCmd, queryCmd, resolveHandleCmd, runCmd)
}
