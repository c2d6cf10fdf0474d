// Package watcher reloads the configuration file while the server runs.
package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/router-for-me/VertexProxyAPI/internal/config"
	log "github.com/sirupsen/logrus"
)

// debounceDelay coalesces the bursts of filesystem events editors emit
// for a single save.
const debounceDelay = 150 * time.Millisecond

// Watcher watches one config file and pushes reloaded configs to apply.
type Watcher struct {
	configPath string
	overrides  func(*config.Config)
	apply      func(*config.Config)
}

// New creates a watcher for configPath. overrides re-applies the CLI
// flag overlays after each reload and may be nil; apply receives every
// successfully reloaded config.
func New(configPath string, overrides, apply func(*config.Config)) *Watcher {
	return &Watcher{configPath: configPath, overrides: overrides, apply: apply}
}

// Run watches until ctx is done. The parent directory is watched rather
// than the file itself, so atomic save strategies (write temp file, then
// rename over the original) keep triggering reloads.
func (w *Watcher) Run(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsWatcher.Close() }()

	dir := filepath.Dir(w.configPath)
	if err = fsWatcher.Add(dir); err != nil {
		return err
	}
	log.Debugf("watching %s for config changes", w.configPath)

	var debounce *time.Timer
	reloads := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() {
				select {
				case reloads <- struct{}{}:
				default:
				}
			})
		case errWatch, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("config watcher: %v", errWatch)
		case <-reloads:
			w.reload()
		}
	}
}

// reload re-reads the config file and hands the result to apply.
func (w *Watcher) reload() {
	cfg, err := config.LoadConfig(w.configPath)
	if err != nil {
		log.Errorf("config reload failed: %v", err)
		return
	}
	if w.overrides != nil {
		w.overrides(cfg)
	}
	log.Infof("config file %s reloaded", w.configPath)
	w.apply(cfg)
}

// PinRestartOnly carries the restart-only upstream identity settings
// from the running config into a freshly reloaded one. The auth
// provider is constructed once at startup, so the mode it was built
// for (and the project/location baked into its URLs) must not drift
// under a live config swap.
func PinRestartOnly(old, next *config.Config) {
	next.APIKey = old.APIKey
	next.ProjectID = old.ProjectID
	next.Location = old.Location
}

// LogRestartRequired reports the settings that only take effect after a
// restart when they differ between the old and new config.
func LogRestartRequired(old, next *config.Config) {
	if old.Bind != next.Bind || old.Port != next.Port {
		log.Warn("bind/port changed; restart required to take effect")
	}
	if old.AuthMode() != next.AuthMode() || old.APIKey != next.APIKey {
		log.Warn("upstream auth settings changed; restart required to take effect")
	}
	if old.Location != next.Location || old.ProjectID != next.ProjectID {
		log.Warn("location/project-id changed; restart required to take effect")
	}
	if old.Store != next.Store {
		log.Warn("store settings changed; restart required to take effect")
	}
	if old.ProxyURL != next.ProxyURL {
		log.Warn("proxy-url changed; restart required to take effect")
	}
}
