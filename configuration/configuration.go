// Package configuration loads the engine's INI-style configuration file
// (spec §6), conventionally stored at
// <config>/0install.net/injector/global, with values overridable by
// ZEROINSTALL_-prefixed environment variables in the same Abc_Xyz ->
// ZEROINSTALL_ABC_XYZ scheme the teacher's registry config used for its
// own YAML documents.
package configuration

import (
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// NetworkUse controls how freely the engine is allowed to touch the
// network while solving and fetching.
type NetworkUse string

const (
	NetworkFull    NetworkUse = "full"
	NetworkMinimal NetworkUse = "minimal"
	NetworkOffline NetworkUse = "offline"
)

func parseNetworkUse(s string) (NetworkUse, error) {
	switch NetworkUse(strings.ToLower(s)) {
	case NetworkFull, "":
		return NetworkFull, nil
	case NetworkMinimal:
		return NetworkMinimal, nil
	case NetworkOffline:
		return NetworkOffline, nil
	default:
		return "", fmt.Errorf("configuration: invalid network_use %q, must be one of full, minimal, offline", s)
	}
}

// Loglevel is the level at which engine operations are logged: error,
// warn, info, or debug.
type Loglevel string

func parseLoglevel(s string) (Loglevel, error) {
	s = strings.ToLower(s)
	switch s {
	case "":
		return "info", nil
	case "error", "warn", "info", "debug":
		return Loglevel(s), nil
	default:
		return "", fmt.Errorf("configuration: invalid log level %q, must be one of error, warn, info, debug", s)
	}
}

// Log configures the ambient logging stack shared by every component
// (store, feed, fetch, solver), mirroring the teacher's own [log]
// section but trimmed to what an engine with no HTTP surface needs.
type Log struct {
	Level     Loglevel
	Formatter string // "text", "json" or "logstash"
	Fields    map[string]string
	Hooks     LogHooks
}

// LogHooks names the optional logrus hooks an operator may attach,
// mirroring the teacher's [log.hooks] configuration for error-reporting
// integrations.
type LogHooks struct {
	// BugsnagAPIKey, if set, attaches a logrus-bugsnag hook so Error level
	// and above entries are forwarded to Bugsnag.
	BugsnagAPIKey string
}

// SyncServer holds the optional 0install sync service endpoint and
// credentials used to share feed preferences and trust decisions across
// machines.
type SyncServer struct {
	URL      string
	Username string
	Password string
}

// Configuration is the engine's persisted configuration, parsed from an
// INI document per spec §6.
type Configuration struct {
	// Freshness is how long a cached feed may go unchecked before the
	// Solver issues a background refresh (spec §4.7). Default ~7 days.
	Freshness time.Duration

	// NetworkUse controls how freely the Fetcher and Solver may reach the
	// network.
	NetworkUse NetworkUse

	// HelpWithTesting opts into preferring "testing"-stability candidates
	// during solving, to surface regressions earlier.
	HelpWithTesting bool

	// AutoApproveKeys skips the TrustHandler prompt for a key already
	// vouched for by a key-info server, adding it to the TrustDB directly.
	AutoApproveKeys bool

	// FeedMirror is the base URL consulted when a feed or archive fetch
	// fails with a non-auth network error (see trust.CheckTrust's
	// companion Fetcher-side mirror fallback).
	FeedMirror string

	// KeyInfoServer is consulted to fetch or validate a signing key
	// missing from the local keyring.
	KeyInfoServer string

	// SyncServer is the optional cross-machine sync endpoint.
	SyncServer SyncServer

	// KioskMode disables all destructive or state-changing prompts,
	// assuming unattended operation.
	KioskMode bool

	// Log configures the ambient logging stack.
	Log Log
}

// Defaults returns a Configuration with spec-mandated defaults applied,
// before a file or environment is read.
func Defaults() *Configuration {
	return &Configuration{
		Freshness:  7 * 24 * time.Hour,
		NetworkUse: NetworkFull,
		Log:        Log{Level: "info", Formatter: "text"},
	}
}

// Parse reads an INI document from rd into a Configuration seeded with
// Defaults(), then applies ZEROINSTALL_-prefixed environment overrides.
func Parse(rd io.Reader, environ []string) (*Configuration, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("configuration: read: %w", err)
	}

	cfg := Defaults()
	if len(strings.TrimSpace(string(data))) > 0 {
		f, err := ini.Load(data)
		if err != nil {
			return nil, fmt.Errorf("configuration: parse ini: %w", err)
		}
		if err := applyFile(cfg, f); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg, environ); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFile(cfg *Configuration, f *ini.File) error {
	global := f.Section("")

	if key := global.Key("freshness"); key.String() != "" {
		seconds, err := key.Int64()
		if err != nil {
			return fmt.Errorf("configuration: freshness: %w", err)
		}
		cfg.Freshness = time.Duration(seconds) * time.Second
	}
	if v := global.Key("network_use").String(); v != "" {
		nu, err := parseNetworkUse(v)
		if err != nil {
			return err
		}
		cfg.NetworkUse = nu
	}
	if key := global.Key("help_with_testing"); key.String() != "" {
		b, err := key.Bool()
		if err != nil {
			return fmt.Errorf("configuration: help_with_testing: %w", err)
		}
		cfg.HelpWithTesting = b
	}
	if key := global.Key("auto_approve_keys"); key.String() != "" {
		b, err := key.Bool()
		if err != nil {
			return fmt.Errorf("configuration: auto_approve_keys: %w", err)
		}
		cfg.AutoApproveKeys = b
	}
	if v := global.Key("feed_mirror").String(); v != "" {
		cfg.FeedMirror = v
	}
	if v := global.Key("key_info_server").String(); v != "" {
		cfg.KeyInfoServer = v
	}
	if key := global.Key("kiosk_mode"); key.String() != "" {
		b, err := key.Bool()
		if err != nil {
			return fmt.Errorf("configuration: kiosk_mode: %w", err)
		}
		cfg.KioskMode = b
	}

	if sec, err := f.GetSection("sync"); err == nil {
		cfg.SyncServer = SyncServer{
			URL:      sec.Key("server").String(),
			Username: sec.Key("username").String(),
			Password: sec.Key("password").String(),
		}
	}

	if sec, err := f.GetSection("log"); err == nil {
		if v := sec.Key("level").String(); v != "" {
			lvl, err := parseLoglevel(v)
			if err != nil {
				return err
			}
			cfg.Log.Level = lvl
		}
		if v := sec.Key("formatter").String(); v != "" {
			cfg.Log.Formatter = v
		}
		if keys := sec.Key("fields").Strings(","); len(keys) > 0 {
			cfg.Log.Fields = splitFieldPairs(keys)
		}
		if v := sec.Key("bugsnag_api_key").String(); v != "" {
			cfg.Log.Hooks.BugsnagAPIKey = v
		}
	}

	return nil
}

func splitFieldPairs(pairs []string) map[string]string {
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		kv := strings.SplitN(strings.TrimSpace(p), "=", 2)
		if len(kv) != 2 {
			continue
		}
		m[kv[0]] = kv[1]
	}
	return m
}

// applyEnv overlays ZEROINSTALL_-prefixed environment variables onto cfg,
// following the same ABC_XYZ naming the teacher's registry config used,
// retargeted to the engine's own field set.
func applyEnv(cfg *Configuration, environ []string) error {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			env[parts[0]] = parts[1]
		}
	}

	if v, ok := env["ZEROINSTALL_FRESHNESS"]; ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("configuration: ZEROINSTALL_FRESHNESS: %w", err)
		}
		cfg.Freshness = d
	}
	if v, ok := env["ZEROINSTALL_NETWORK_USE"]; ok {
		nu, err := parseNetworkUse(v)
		if err != nil {
			return err
		}
		cfg.NetworkUse = nu
	}
	if v, ok := env["ZEROINSTALL_HELP_WITH_TESTING"]; ok {
		cfg.HelpWithTesting = isTruthy(v)
	}
	if v, ok := env["ZEROINSTALL_AUTO_APPROVE_KEYS"]; ok {
		cfg.AutoApproveKeys = isTruthy(v)
	}
	if v, ok := env["ZEROINSTALL_FEED_MIRROR"]; ok {
		cfg.FeedMirror = v
	}
	if v, ok := env["ZEROINSTALL_KEY_INFO_SERVER"]; ok {
		cfg.KeyInfoServer = v
	}
	if v, ok := env["ZEROINSTALL_KIOSK_MODE"]; ok {
		cfg.KioskMode = isTruthy(v)
	}
	if v, ok := env["ZEROINSTALL_SYNC_SERVER"]; ok {
		cfg.SyncServer.URL = v
	}
	if v, ok := env["ZEROINSTALL_SYNC_USERNAME"]; ok {
		cfg.SyncServer.Username = v
	}
	if v, ok := env["ZEROINSTALL_SYNC_PASSWORD"]; ok {
		cfg.SyncServer.Password = v
	}
	if v, ok := env["ZEROINSTALL_LOG_LEVEL"]; ok {
		lvl, err := parseLoglevel(v)
		if err != nil {
			return err
		}
		cfg.Log.Level = lvl
	}
	if v, ok := env["ZEROINSTALL_LOG_FORMATTER"]; ok {
		cfg.Log.Formatter = v
	}
	if v, ok := env["ZEROINSTALL_LOG_BUGSNAG_API_KEY"]; ok {
		cfg.Log.Hooks.BugsnagAPIKey = v
	}
	return nil
}

func isTruthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
