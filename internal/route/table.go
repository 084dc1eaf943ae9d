// Package route provides the static route table mapping route keys to
// upstream targets.
package route

import (
	"log/slog"

	"fanout-gateway-go/internal/client"
	"fanout-gateway-go/internal/config"
	"fanout-gateway-go/internal/model"
)

// Table maps route keys to their ordered upstream targets. It is built once
// at startup and read-only afterwards.
type Table struct {
	routes map[string][]model.Target
}

// New builds a Table from validated configuration. Each declared upstream
// gets one pooled transport handle; routes referencing the same upstream
// share it. A route fanning out wider than upstream.fanout_warn_threshold is
// reported as an operational warning.
func New(cfg *config.Config, logger *slog.Logger) *Table {
	targets := make(map[string]model.Target, len(cfg.Upstreams))
	for _, u := range cfg.Upstreams {
		targets[u.Name] = model.Target{
			Name:   u.Name,
			Scheme: cfg.Upstream.DefaultScheme,
			Host:   u.Host,
			Port:   u.Port,
			Path:   u.Path,
			Client: client.NewUpstreamClient(cfg),
		}
	}

	routes := make(map[string][]model.Target, len(cfg.Routes))
	for key, names := range cfg.Routes {
		list := make([]model.Target, 0, len(names))
		for _, name := range names {
			list = append(list, targets[name])
		}
		routes[key] = list
		if len(list) > cfg.Upstream.FanoutWarnThreshold {
			logger.Warn("route fans out beyond threshold",
				"route", key,
				"targets", len(list),
				"threshold", cfg.Upstream.FanoutWarnThreshold,
			)
		}
	}

	logger.Info("route table built",
		"routes", len(routes),
		"upstreams", len(targets),
	)

	return &Table{routes: routes}
}

// NewStatic builds a Table from an explicit route mapping, skipping config
// validation. Tests use it to assemble tables around httptest servers.
func NewStatic(routes map[string][]model.Target) *Table {
	copied := make(map[string][]model.Target, len(routes))
	for key, targets := range routes {
		copied[key] = targets
	}
	return &Table{routes: copied}
}

// Lookup returns the targets registered for key. ok is false when the key is
// unknown; a table built from validated configuration never maps a present
// key to an empty list.
func (t *Table) Lookup(key string) ([]model.Target, bool) {
	targets, ok := t.routes[key]
	return targets, ok
}
