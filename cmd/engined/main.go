package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"engined/internal/buildcache"
	"engined/internal/config"
	"engined/internal/httpapi"
	"engined/internal/loader"
	"engined/internal/modelspec"
	"engined/pkg/types"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "engined",
		Short:         "Engine build cache and configuration arbiter",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", envStr("ENGINED_CONFIG", ""), "Path to config file (json|yaml|toml)")
	root.PersistentFlags().String("cache-root", envStr("ENGINED_CACHE_ROOT", "~/.cache/engined"), "Engine cache root directory")
	root.PersistentFlags().String("log-level", envStr("ENGINED_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")

	root.AddCommand(serveCmd(), inspectCmd(), planCmd(), cacheCmd())
	return root
}

// loadConfig merges the optional config file with flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return cfg, err
		}
	}
	if cfg.Addr == "" {
		cfg.Addr = envStr("ENGINED_ADDR", ":8080")
	}
	if v, _ := cmd.Flags().GetString("cache-root"); cmd.Flags().Changed("cache-root") || cfg.CacheRoot == "" {
		cfg.CacheRoot = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); cmd.Flags().Changed("log-level") || cfg.LogLevel == "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).With().Timestamp().Logger()
}

func openCache(cfg config.Config, log zerolog.Logger) (*buildcache.BuildCache, error) {
	opts := []buildcache.Option{buildcache.WithLogger(log)}
	if cfg.CacheMaxRecords > 0 {
		opts = append(opts, buildcache.WithMaxRecords(cfg.CacheMaxRecords))
	}
	return buildcache.New(cfg.CacheRoot, opts...)
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the cache status HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log := newLogger(cfg.LogLevel)
			cache, err := openCache(cfg, log)
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			svc := loader.New(cache, loader.Collaborators{}, loader.WithLogger(log))

			httpapi.SetLogger(log)
			if origins, _ := cmd.Flags().GetString("cors-origins"); origins != "" {
				httpapi.SetCORSOptions(true, splitCSV(origins),
					[]string{http.MethodGet, http.MethodDelete}, []string{"Content-Type"})
			}
			srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(svc)}

			go func() {
				log.Info().Str("addr", cfg.Addr).Str("cache_root", cache.Root()).Msg("engined listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server error")
				}
			}()

			// Graceful shutdown (Ctrl+C / SIGTERM)
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Warn().Err(err).Msg("graceful shutdown error")
			}
			return nil
		},
	}
	cmd.Flags().String("cors-origins", envStr("ENGINED_CORS_ORIGINS", ""), "Comma-separated list of allowed CORS origins")
	return cmd
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <model-dir>",
		Short: "Classify a model directory and print its identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := modelspec.DetectFormat(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("format: %s\n", format)
			desc, err := modelspec.Describe(args[0], types.DefaultParallelConfig())
			if err != nil {
				return err
			}
			fmt.Printf("architecture: %s\n", desc.Architecture)
			fmt.Printf("dtype: %s\n", desc.Dtype)
			return nil
		},
	}
}

func planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <model-dir>",
		Short: "Resolve the build configuration and report the cache outlook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := cacheFromFlags(cmd)
			if err != nil {
				return err
			}
			ld := loader.New(cache, loader.Collaborators{})
			req := loader.BuildRequest{Model: args[0], EnableCache: true}
			req.Parallel.TPSize, _ = cmd.Flags().GetInt("tp-size")
			req.Parallel.PPSize, _ = cmd.Flags().GetInt("pp-size")
			plan, err := ld.Plan(req)
			if err != nil {
				return err
			}
			fmt.Printf("format: %s\n", plan.Format)
			if plan.Fingerprint != "" {
				fmt.Printf("fingerprint: %s\n", plan.Fingerprint)
				fmt.Printf("cached: %v\n", plan.Cached)
			}
			out, err := json.MarshalIndent(plan.Build, "", "  ")
			if err != nil {
				return err
			}
			fmt.Printf("build config: %s\n", out)
			return nil
		},
	}
	cmd.Flags().Int("tp-size", 1, "Tensor-parallel worker count")
	cmd.Flags().Int("pp-size", 1, "Pipeline-parallel worker count")
	return cmd
}

func cacheCmd() *cobra.Command {
	cacheRoot := &cobra.Command{Use: "cache", Short: "Inspect and manage the engine cache", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("cache requires a subcommand: ls|prune|purge")
	}}

	ls := &cobra.Command{Use: "ls", Short: "List cached engines, newest first", RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := cacheFromFlags(cmd)
		if err != nil {
			return err
		}
		entries, err := cache.Entries()
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s  %10d bytes  %s\n", e.Fingerprint, e.SizeBytes,
				time.Unix(e.LastUsedUnix, 0).Format(time.RFC3339))
		}
		return nil
	}}

	prune := &cobra.Command{Use: "prune", Short: "Evict least recently used engines over the record limit", RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := cacheFromFlags(cmd)
		if err != nil {
			return err
		}
		n, err := cache.Prune()
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d\n", n)
		return nil
	}}

	purge := &cobra.Command{Use: "purge", Short: "Remove every cached engine", RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := cacheFromFlags(cmd)
		if err != nil {
			return err
		}
		return cache.Purge()
	}}

	cacheRoot.AddCommand(ls, prune, purge)
	return cacheRoot
}

func cacheFromFlags(cmd *cobra.Command) (*buildcache.BuildCache, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return openCache(cfg, newLogger(cfg.LogLevel))
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			part := trimSpace(s[start:i])
			if part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}

func trimSpace(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}
