// Package app provides the main application setup and dependency injection.
package app

import (
	"embed-resolver-go/pkg/appctx"
	"embed-resolver-go/pkg/collector"
	"embed-resolver-go/pkg/config"
	"embed-resolver-go/pkg/extractors"
	"embed-resolver-go/pkg/flaresolverr"
	"embed-resolver-go/pkg/handlers/api"
	"embed-resolver-go/pkg/hls"
	"embed-resolver-go/pkg/httpclient"
	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/pipeline"
	"embed-resolver-go/pkg/registry"
	"embed-resolver-go/pkg/server"
	"embed-resolver-go/pkg/services"
	"embed-resolver-go/pkg/validator"
)

// App is the main application container.
type App struct {
	Ctx          *appctx.Context
	Server       *server.Server
	ExtractorReg *registry.ExtractorRegistry
	Pipeline     *pipeline.Pipeline
}

// New wires every component from cfg. The HTTP server is built but not started.
func New(cfg *config.Config, log *logging.Logger, version string) (*App, error) {
	log.Info("initializing embed resolver",
		"port", cfg.Port,
		"log_level", cfg.LogLevel,
		"concurrency", cfg.Concurrency,
		"max_embeds", cfg.MaxEmbeds,
		"target", cfg.TargetResults,
	)

	ctx := appctx.New(cfg, log)
	ctx.Version = version

	// FlareSolverr is optional; a nil client disables the challenge fallback
	var flareClient *flaresolverr.Client
	if cfg.FlareSolverrURL != "" {
		flareClient = flaresolverr.NewClient(cfg.FlareSolverrURL, cfg.FlareSolverrTimeout, log)
		log.Info("FlareSolverr client enabled", "url", cfg.FlareSolverrURL)
	}

	httpClient := httpclient.New(cfg, log, httpclient.WithSolver(flareClient))
	ctx.WithHTTPClient(httpClient)
	log.Debug("http client ready", "user_agent", httpClient.UserAgent())

	extractorReg := registry.NewExtractorRegistry()
	registerExtractors(extractorReg, httpClient, log, cfg)

	pl := pipeline.New(
		extractorReg,
		hls.NewResolver(httpClient, log, cfg.ManifestTimeout),
		validator.New(httpClient, log, cfg.ProbeTimeout, cfg.ProbeCacheTTL),
		log,
		pipeline.Options{SplitAudioTracks: cfg.SplitAudioTracks},
	)

	coll := collector.New(pl, log, collector.Options{
		Concurrency: cfg.Concurrency,
		MaxEmbeds:   cfg.MaxEmbeds,
		Target:      cfg.TargetResults,
	})

	ctx.WithResolver(services.NewResolveService(httpClient, pl, coll, log, cfg.FetchTimeout, cfg.SimilarityThreshold))

	srv := server.New(cfg, log)
	api.NewHandlers(ctx).RegisterRoutes(srv.Router())

	return &App{
		Ctx:          ctx,
		Server:       srv,
		ExtractorReg: extractorReg,
		Pipeline:     pl,
	}, nil
}

// Run starts the HTTP server and blocks until it stops.
func (a *App) Run() error {
	a.Ctx.Log.Info("starting embed resolver server", "port", a.Ctx.Config.Port)
	return a.Server.Start()
}

// Shutdown releases extractor resources.
func (a *App) Shutdown() {
	a.Ctx.Log.Info("shutting down application")
	if err := a.ExtractorReg.Close(); err != nil {
		a.Ctx.Log.Warn("closing extractors", "error", err)
	}
}

// registerExtractors registers all embed extractors.
// Add new extractors here by:
// 1. Creating a new extractor in pkg/extractors/
// 2. Registering it below
func registerExtractors(
	reg *registry.ExtractorRegistry,
	client *httpclient.Client,
	log *logging.Logger,
	cfg *config.Config,
) {
	opts := extractors.EmbedOptions{
		Timeout:  cfg.FetchTimeout,
		MaxDepth: cfg.MaxEmbedDepth,
		Mirrors:  cfg.LandingMirrors,
	}

	reg.Register(extractors.NewMixdropExtractor(client, log, opts))
	reg.Register(extractors.NewStreamtapeExtractor(client, log, opts))

	// Generic packed/obfuscated embed pages
	reg.SetFallback(extractors.NewEmbedExtractor(client, log, opts))

	log.Info("registered extractors", "count", len(reg.All())+1) // +1 for fallback
}
