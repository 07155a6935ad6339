// Package main wires the engine's components (store, trust, feed, fetch,
// solver, selections) into a cobra command tree, following the split the
// teacher uses for its own binaries: cmd/<binary>/main.go stays a thin
// Execute() call, and root.go carries persistent flags, configuration
// loading, and logging setup (registry/root.go, registry/registry.go).
package main

import (
	"context"
	"fmt"
	"os"

	bugsnaghook "github.com/Shopify/logrus-bugsnag"
	logstash "github.com/bshuster-repo/logrus-logstash-hook"
	"github.com/bugsnag/bugsnag-go/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zeroinstall/zeroinstall/configuration"
	"github.com/zeroinstall/zeroinstall/health"
	"github.com/zeroinstall/zeroinstall/health/checks"
	"github.com/zeroinstall/zeroinstall/internal/dcontext"
	"github.com/zeroinstall/zeroinstall/store"
	"github.com/zeroinstall/zeroinstall/trust"
	"github.com/zeroinstall/zeroinstall/version"
)

var (
	configPath string
	cacheDir   string
	storeDirs  []string
	showVersion bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the 0install.net/injector/global configuration file")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", defaultCacheDir(), "root of the feed cache and trust database")
	rootCmd.PersistentFlags().StringSliceVar(&storeDirs, "store", nil, "implementation store directory (repeatable; defaults to <cache-dir>/implementations)")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "print the engine version and exit")

	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(statusCmd)
}

// rootCmd is the main command for the "0install-engine" binary.
var rootCmd = &cobra.Command{
	Use:   "0install-engine",
	Short: "Zero Install core engine: solve, fetch, and deploy feed-described implementations",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfiguration()
		if err != nil {
			return err
		}
		cmd.SetContext(configureLogging(cmd.Context(), cfg))
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			version.FprintVersion(cmd.OutOrStdout())
			return nil
		}
		return cmd.Usage()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultCacheDir() string {
	if dir, ok := os.LookupEnv("ZEROINSTALL_CACHE_DIR"); ok && dir != "" {
		return dir
	}
	home, err := os.UserCacheDir()
	if err != nil {
		return ".0install-cache"
	}
	return home + "/0install.net"
}

// loadConfiguration reads configPath (or its default location under
// cacheDir), falling back to Defaults() if the file doesn't exist — a
// fresh install has no configuration file yet.
func loadConfiguration() (*configuration.Configuration, error) {
	path := configPath
	if path == "" {
		path = cacheDir + "/injector/global"
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return configuration.Defaults(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open configuration %s: %w", path, err)
	}
	defer f.Close()
	return configuration.Parse(f, os.Environ())
}

// configureLogging applies cfg.Log to logrus and returns a context
// carrying the resulting logger, mirroring the teacher's
// registry.go configureLogging.
func configureLogging(ctx context.Context, cfg *configuration.Configuration) context.Context {
	lvl, err := logrus.ParseLevel(string(cfg.Log.Level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)

	switch cfg.Log.Formatter {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "logstash":
		logrus.SetFormatter(&logstash.LogstashFormatter{Formatter: &logrus.JSONFormatter{}})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{})
	}

	if key := cfg.Log.Hooks.BugsnagAPIKey; key != "" {
		bugsnag.Configure(bugsnag.Configuration{APIKey: key})
		if hook, err := bugsnaghook.NewBugsnagHook(); err != nil {
			logrus.WithError(err).Warn("log: bugsnag hook not installed")
		} else {
			logrus.AddHook(hook)
		}
	}

	return dcontext.WithLogger(ctx, dcontext.GetLogger(ctx))
}

// resolvedStoreDirs returns --store, defaulting to a single store under
// cacheDir when none were given.
func resolvedStoreDirs() []string {
	if len(storeDirs) == 0 {
		return []string{cacheDir + "/implementations"}
	}
	return storeDirs
}

// storeSearchPath builds the Store search path from --store, defaulting to
// a single store under cacheDir when none were given.
func storeSearchPath() *store.SearchPath {
	dirs := resolvedStoreDirs()
	stores := make([]*store.Store, len(dirs))
	for i, d := range dirs {
		stores[i] = store.New(d)
	}
	return store.NewSearchPath(stores...)
}

// openTrustDB opens the trust database under cacheDir, creating it on
// first use.
func openTrustDB() (*trust.DB, error) {
	return trust.Open(cacheDir + "/injector/trustdb.xml")
}

// registerHealthChecks wires liveness probes for the engine's on-disk
// collaborators into health.DefaultRegistry, so statusCmd (and any
// wrapping supervisor) can ask health.CheckStatus without depending on
// package internals.
func registerHealthChecks() {
	health.RegisterFunc("feed-cache", func(ctx context.Context) error {
		return os.MkdirAll(cacheDir+"/interfaces", 0o755)
	})
	for _, d := range resolvedStoreDirs() {
		dir := d
		health.RegisterFunc("store:"+dir, func(ctx context.Context) error {
			info, err := os.Stat(dir)
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}
			return nil
		})
	}
	// maintenanceFile, if present, signals an operator-initiated
	// maintenance window; checks.FileChecker reports unhealthy for as
	// long as it exists (mirrors the teacher's own use of FileChecker as
	// a poison-file check rather than a presence probe).
	health.Register("maintenance", checks.FileChecker(cacheDir+"/MAINTENANCE"))
}
