package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zeroinstall/zeroinstall/health"
)

var statusListenAddr string

func init() {
	statusCmd.Flags().StringVar(&statusListenAddr, "listen", "", "instead of exiting, serve /health and Prometheus /metrics on this address (e.g. :9101)")
}

// statusCmd runs every registered health check and exits non-zero if any
// reports a problem, the consumer the health package's doc comment
// promises: "cmd/0install-engine is the only thing that dereferences
// CheckStatus". With --listen it instead stays up, the same
// "providing prometheus metrics on <path>" server the teacher's
// registry.go runs alongside its own request handling.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Run the engine's health checks (feed cache, implementation stores, maintenance flag)",
	RunE: func(cmd *cobra.Command, args []string) error {
		registerHealthChecks()

		if statusListenAddr != "" {
			return serveStatus(statusListenAddr)
		}

		// CheckStatus reports only the checks currently failing; a clean
		// run returns an empty map.
		failures := health.CheckStatus(cmd.Context())
		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		sort.Strings(names)

		out := cmd.OutOrStdout()
		for _, name := range names {
			fmt.Fprintf(out, "FAIL %s: %s\n", name, failures[name])
		}
		if len(names) > 0 {
			return fmt.Errorf("%d health check(s) failed", len(names))
		}
		fmt.Fprintln(out, "OK")
		return nil
	},
}

// serveStatus runs an HTTP server exposing the engine's health checks at
// /health (as a JSON failure map, empty once healthy) and its registered
// counters at /metrics via the standard prometheus client_golang handler.
func serveStatus(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		failures := health.CheckStatus(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if len(failures) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(failures)
	})
	mux.Handle("/metrics", promhttp.Handler())
	logrus.Infof("status: serving /health and /metrics on %s", addr)
	return http.ListenAndServe(addr, mux)
}
