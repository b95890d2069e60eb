package resultpush

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"cageside/internal/config"
)

func ConfigFromServer(cfg config.ServerConfig) (Config, error) {
	out := Config{
		Enabled:             cfg.ResultPushEnabled,
		ConfigPath:          strings.TrimSpace(cfg.ResultPushConfigPath),
		ConfigReload:        time.Duration(cfg.ResultPushReloadMS) * time.Millisecond,
		Workers:             cfg.ResultPushWorkers,
		RetryMax:            cfg.ResultPushRetryMax,
		RetryBase:           time.Duration(cfg.ResultPushRetryMS) * time.Millisecond,
		FailureThreshold:    3,
		CircuitOpenDuration: 30 * time.Second,
		RequestTimeout:      5 * time.Second,
		DispatchBuffer:      1024,
	}
	if !out.Enabled {
		return out, nil
	}
	if out.Workers <= 0 {
		out.Workers = 2
	}
	if out.RetryMax < 0 {
		out.RetryMax = 0
	}
	if out.RetryBase <= 0 {
		out.RetryBase = 500 * time.Millisecond
	}
	if out.ConfigReload <= 0 {
		out.ConfigReload = time.Second
	}

	raw, err := loadTargetsJSON(cfg)
	if err != nil {
		return Config{}, err
	}
	if raw == "" {
		return out, nil
	}
	targets, err := parseTargetsJSON(raw)
	if err != nil {
		return Config{}, err
	}
	out.Targets = targets
	return out, nil
}

func loadTargetsJSON(cfg config.ServerConfig) (string, error) {
	path := strings.TrimSpace(cfg.ResultPushConfigPath)
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read result push config %q: %w", path, err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	return strings.TrimSpace(cfg.ResultPushConfigJSON), nil
}

// parseTargetsJSON drops disabled targets, targets without an endpoint and
// targets with an unknown scope.
func parseTargetsJSON(raw string) ([]PushTarget, error) {
	var targets []PushTarget
	if err := json.Unmarshal([]byte(raw), &targets); err != nil {
		return nil, fmt.Errorf("parse result push targets: %w", err)
	}
	out := make([]PushTarget, 0, len(targets))
	for _, t := range targets {
		t.Platform = strings.ToLower(strings.TrimSpace(t.Platform))
		t.ScopeType = strings.ToLower(strings.TrimSpace(t.ScopeType))
		if t.ScopeType == "" {
			t.ScopeType = "all"
		}
		if t.ScopeType != "all" && t.ScopeType != "bout" {
			continue
		}
		t.Endpoint = strings.TrimSpace(t.Endpoint)
		if t.Endpoint == "" || !t.Enabled {
			continue
		}
		for i := range t.EventAllowlist {
			t.EventAllowlist[i] = strings.ToLower(strings.TrimSpace(t.EventAllowlist[i]))
		}
		out = append(out, t)
	}
	return out, nil
}
