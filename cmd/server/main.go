// Command server runs the Vertex bridge: an OpenAI-compatible HTTP
// front that forwards chat, native generate, and model-listing calls to
// Google Vertex AI using either application default credentials or an
// express-mode API key.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/router-for-me/VertexProxyAPI/internal/api"
	"github.com/router-for-me/VertexProxyAPI/internal/auth"
	"github.com/router-for-me/VertexProxyAPI/internal/buildinfo"
	"github.com/router-for-me/VertexProxyAPI/internal/config"
	"github.com/router-for-me/VertexProxyAPI/internal/logging"
	"github.com/router-for-me/VertexProxyAPI/internal/store"
	"github.com/router-for-me/VertexProxyAPI/internal/util"
	"github.com/router-for-me/VertexProxyAPI/internal/watcher"
	log "github.com/sirupsen/logrus"
)

// cliFlags carries the parsed command line. Only flags the user actually
// set override the config file, so flag defaults never mask file values.
type cliFlags struct {
	configPath       string
	port             int
	bind             string
	apiKey           string
	autoRefresh      bool
	filterModelNames bool
	version          bool

	set map[string]bool
}

func parseFlags() *cliFlags {
	f := &cliFlags{set: make(map[string]bool)}
	flag.StringVar(&f.configPath, "config", "config.yaml", "path to the YAML config file")
	flag.IntVar(&f.port, "p", 8086, "listen port")
	flag.StringVar(&f.bind, "b", "localhost", "listen address")
	flag.StringVar(&f.apiKey, "k", "", "Vertex express-mode API key")
	flag.BoolVar(&f.autoRefresh, "auto-refresh", true, "refresh the access token in the background")
	flag.BoolVar(&f.filterModelNames, "filter-model-names", true, "filter the model listing to known prefixes")
	flag.BoolVar(&f.version, "v", false, "print version and exit")
	flag.Parse()
	flag.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f
}

// apply overlays the flags the user set onto the config.
func (f *cliFlags) apply(cfg *config.Config) {
	if f.set["p"] {
		cfg.Port = f.port
	}
	if f.set["b"] {
		cfg.Bind = f.bind
	}
	if f.set["k"] {
		cfg.APIKey = f.apiKey
	}
	if f.set["auto-refresh"] {
		cfg.AutoRefresh = f.autoRefresh
	}
	if f.set["filter-model-names"] {
		cfg.FilterModelNames = f.filterModelNames
	}
}

func main() {
	flags := parseFlags()
	if flags.version {
		fmt.Printf("vertex-proxy-api %s (%s, built %s)\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
		return
	}

	// A missing .env file is the normal case.
	_ = godotenv.Load()

	logging.SetupBaseLogger()

	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	flags.apply(cfg)
	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Fatalf("configure logging: %v", err)
	}

	log.Infof("vertex-proxy-api %s (%s, built %s) starting", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stateStore, err := store.NewStateStore(ctx, cfg, flags.configPath)
	if err != nil {
		log.Fatalf("open state store: %v", err)
	}
	stateManager := store.NewManager(stateStore)
	state, err := stateManager.Load(ctx)
	if err != nil {
		log.Fatalf("load state: %v", err)
	}
	if cfg.ProxyKey == "" && state.ProxyKey != "" {
		cfg.ProxyKey = state.ProxyKey
		log.Info("proxy key loaded from state store")
	}

	httpClient := util.SetProxy(cfg, &http.Client{})

	if cfg.AuthMode() == config.AuthModeServiceAccount && cfg.ProjectID == "" {
		projectID, errResolve := auth.ResolveProjectID(ctx)
		if errResolve != nil {
			log.Fatalf("resolve project id: %v", errResolve)
		}
		cfg.ProjectID = projectID
		log.Infof("project id %s resolved from default credentials", projectID)
	}

	provider := auth.NewProvider(cfg, stateManager, httpClient)
	if sa, ok := provider.(*auth.ServiceAccountAuth); ok && state.AccessToken != "" {
		sa.SeedToken(state.AccessToken, state.TokenExpiry)
		log.Info("access token seeded from state store")
	}
	provider.Start(ctx)
	defer provider.Stop()

	log.Infof("upstream auth mode: %s, location: %s", cfg.AuthMode(), cfg.Location)
	if cfg.ProxyKey == "" && cfg.Bind != "localhost" && cfg.Bind != "127.0.0.1" && cfg.Bind != "::1" {
		log.Warnf("listening on %s without a proxy key; anyone who can reach this address can use your upstream credentials", cfg.Bind)
	}

	requestLogger := logging.NewFileRequestLogger("logs", nil)
	srv := api.NewServer(cfg, provider, httpClient, requestLogger)
	requestLogger.SetEnabledFunc(func() bool { return srv.Config().RequestLog })

	configWatcher := watcher.New(flags.configPath, flags.apply, func(next *config.Config) {
		old := srv.Config()
		watcher.LogRestartRequired(old, next)
		// Restart-only settings keep their startup values so a config
		// edit cannot half-switch the upstream identity.
		watcher.PinRestartOnly(old, next)
		if next.ProxyKey == "" && old.ProxyKey != "" && state.ProxyKey != "" {
			next.ProxyKey = state.ProxyKey
		}
		if errLog := logging.ConfigureLogOutput(next); errLog != nil {
			log.Errorf("reconfigure logging: %v", errLog)
		}
		srv.UpdateConfig(next)
	})
	go func() {
		if errWatch := configWatcher.Run(ctx); errWatch != nil {
			log.Warnf("config watcher stopped: %v", errWatch)
		}
	}()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Run() }()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err = <-serveErr:
		if err != nil {
			log.Errorf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
	if err = stateManager.Close(); err != nil {
		log.Errorf("close state store: %v", err)
	}
	log.Info("bye")
}
