// Package server assembles the fleet server from its modules: embedded
// KV storage, the command dispatch service agents poll, the bridge
// config editor, the update checker, and operator token auth.
package server

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"sort"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	dslog "github.com/grafana/dskit/log"
	"github.com/grafana/dskit/middleware"
	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/server"
	"github.com/grafana/dskit/services"
	"github.com/grafana/dskit/signals"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/bridgefleet/bridgefleet/pkg/config"
	"github.com/bridgefleet/bridgefleet/pkg/keyring"
	"github.com/bridgefleet/bridgefleet/pkg/services/bridgeconfig"
	"github.com/bridgefleet/bridgefleet/pkg/services/commands"
	storagesvc "github.com/bridgefleet/bridgefleet/pkg/services/storage"
	"github.com/bridgefleet/bridgefleet/pkg/services/updates"
	"github.com/bridgefleet/bridgefleet/pkg/storage"
	"github.com/bridgefleet/bridgefleet/pkg/tokens"
)

func initLogger(logFormat string, logLevel dslog.Level) log.Logger {
	// Use UTC timestamps and skip 5 stack frames.
	l := dslog.NewGoKitWithWriter(logFormat, os.Stderr)
	l = log.With(l, "ts", log.DefaultTimestampUTC, "caller", log.Caller(5))

	// Must put the level filter last for efficiency.
	l = level.NewFilter(l, logLevel.Option)

	return l
}

// The various modules that make up BridgeFleet
const (
	All           = "all"
	Storage       = "storage"
	Commands      = "commands"
	BridgeConfig  = "bridge-config"
	Updates       = "updates"
	Tokens        = "tokens"
	ServerService = "server"
)

const dashboardPrefix = "/api/v1alpha1/dashboard"

type BridgeFleet struct {
	logger *slog.Logger
	cfg    config.Config

	mm   *modules.Manager
	deps map[string][]string

	store storage.KVBroker

	pendingStore storage.KeyValue[commands.PendingCommand]
	historyStore storage.KeyValue[commands.DispatchRecord]
	deviceStore  storage.KeyValue[commands.Device]
	releaseStore storage.KeyValue[*updates.Release]
	tokenStore   storage.KeyValue[*tokens.Record]
	keyStore     storage.KeyValue[*keyring.SigningKey]

	engine    *gin.Engine
	dashboard gin.IRouter

	serviceMap map[string]services.Service
	server     *server.Server
	serverConf server.Config
}

func New(cfg config.Config) (*BridgeFleet, error) {
	l := slog.Default()
	f := &BridgeFleet{
		logger: l,
		cfg:    cfg,
		engine: gin.New(),
	}
	f.engine.Use(gin.Recovery())

	conf := server.Config{
		HTTPListenAddress:             cfg.HTTPListenAddress,
		HTTPListenPort:                cfg.HTTPListenPort,
		DoNotAddDefaultHTTPMiddleware: true,
		LogFormat:                     dslog.LogfmtFormat,
		LogLevel: dslog.Level{
			Option: level.AllowInfo(),
		},
	}

	conf.Log = initLogger(conf.LogFormat, conf.LogLevel)

	srv, err := server.New(conf)
	if err != nil {
		return nil, err
	}
	f.server = srv
	f.serverConf = conf

	if err := f.setupModuleManager(); err != nil {
		return nil, err
	}
	return f, nil
}

func (o *BridgeFleet) setupModuleManager() error {
	mm := modules.NewManager(o.serverConf.Log)
	mm.RegisterModule(All, nil)

	mm.RegisterModule(Storage, func() (services.Service, error) {
		storeSvc, err := storagesvc.NewStorageService(
			o.logger.With("service", Storage),
			o.cfg.StoragePath,
		)
		if err != nil {
			return nil, err
		}
		o.store = storeSvc

		o.pendingStore = storage.NewJSONKV[commands.PendingCommand](
			o.logger.With("store", "pending-commands"),
			o.store.KeyValue("pendingcommands"),
		)
		o.historyStore = storage.NewJSONKV[commands.DispatchRecord](
			o.logger.With("store", "dispatch-history"),
			o.store.KeyValue("dispatchhistory"),
		)
		o.deviceStore = storage.NewJSONKV[commands.Device](
			o.logger.With("store", "devices"),
			o.store.KeyValue("devices"),
		)
		o.releaseStore = storage.NewJSONKV[*updates.Release](
			o.logger.With("store", "releases"),
			o.store.KeyValue("releases"),
		)
		o.tokenStore = storage.NewJSONKV[*tokens.Record](
			o.logger.With("store", "tokens"),
			o.store.KeyValue("tokens"),
		)
		o.keyStore = storage.NewJSONKV[*keyring.SigningKey](
			o.logger.With("store", "keys"),
			o.store.KeyValue("keys"),
		)
		return storeSvc, nil
	}, modules.UserInvisibleModule)

	mm.RegisterModule(Tokens, func() (services.Service, error) {
		tokenSvc := tokens.NewTokenService(
			o.logger.With("service", Tokens),
			o.tokenStore,
			o.keyStore,
		)
		// Every dashboard route sits behind token auth. The agent poll
		// route does not; it lives on the plain router.
		o.dashboard = o.engine.Group(dashboardPrefix, tokenSvc.AuthMiddleware())
		tokenSvc.ConfigureDashboard(o.dashboard)
		return tokenSvc, nil
	})

	mm.RegisterModule(Commands, func() (services.Service, error) {
		commandSvc := commands.NewCommandService(
			o.logger.With("service", Commands),
			o.pendingStore,
			o.historyStore,
			o.deviceStore,
		)
		commandSvc.ConfigureHTTP(o.server.HTTP)
		commandSvc.ConfigureDashboard(o.dashboard)
		return commandSvc, nil
	})

	mm.RegisterModule(BridgeConfig, func() (services.Service, error) {
		configSvc := bridgeconfig.NewConfigService(
			o.logger.With("service", BridgeConfig),
			o.cfg.BridgeConfigPath,
			o.cfg.BackupDir,
		)
		configSvc.ConfigureDashboard(o.dashboard)
		return configSvc, nil
	})

	mm.RegisterModule(Updates, func() (services.Service, error) {
		updateSvc := updates.NewUpdateService(
			o.logger.With("service", Updates),
			o.cfg.UpdateFeedURL,
			o.cfg.UpdateCheckInterval,
			o.releaseStore,
		)
		updateSvc.ConfigureDashboard(o.dashboard)
		return updateSvc, nil
	})

	mm.RegisterModule(ServerService, func() (services.Service, error) {
		servicesToWaitFor := func() []services.Service {
			svs := []services.Service(nil)
			for m, s := range o.serviceMap {
				// Server should not wait for itself.
				if m != ServerService {
					svs = append(svs, s)
				}
			}
			return svs
		}
		o.server.HTTP.PathPrefix(dashboardPrefix).Handler(o.engine)
		defaultHTTPMiddleware := []middleware.Interface{}
		o.server.HTTPServer.Handler = middleware.Merge(defaultHTTPMiddleware...).Wrap(o.server.HTTP)
		s := o.newServerService(servicesToWaitFor)
		corsHandler := cors.New(cors.Options{
			AllowedOrigins:   o.cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}).Handler(o.server.HTTPServer.Handler)
		o.server.HTTPServer.Handler = h2c.NewHandler(corsHandler, &http2.Server{})

		return s, nil
	}, modules.UserInvisibleModule)

	deps := map[string][]string{
		All: {
			ServerService,
		},
		ServerService: {Commands, BridgeConfig, Updates, Tokens},
		Commands:      {Storage, Tokens},
		BridgeConfig:  {Tokens},
		Updates:       {Storage, Tokens},
		Tokens:        {Storage},
	}

	for mod, targets := range deps {
		if err := mm.AddDependency(mod, targets...); err != nil {
			return err
		}
	}

	o.mm = mm
	o.deps = deps
	allDeps := o.mm.DependenciesForModule(All)
	for _, m := range o.mm.UserVisibleModuleNames() {
		ix := sort.SearchStrings(allDeps, m)
		included := ix < len(allDeps) && allDeps[ix] == m

		if included {
			fmt.Fprintln(os.Stdout, m, "*")
		} else {
			fmt.Fprintln(os.Stdout, m)
		}
	}

	fmt.Fprintln(os.Stdout)
	fmt.Fprintln(os.Stdout, "Modules marked with * are included in target All.")
	return nil
}

func (o *BridgeFleet) Run(ctx context.Context) error {
	svcMap, err := o.mm.InitModuleServices(All)
	if err != nil {
		return err
	}
	o.serviceMap = svcMap

	mgr, err := services.NewManager(slices.Collect(maps.Values(svcMap))...)
	if err != nil {
		o.logger.With("err", err).Error("failed to start service manager")
		return err
	}

	servicesFailed := func(service services.Service) {
		mgr.StopAsync()

		for m, s := range svcMap {
			if s == service {
				if service.FailureCase() == modules.ErrStopProcess {
					o.logger.With(
						"module", m,
					).With(
						"error", service.FailureCase(),
					).Info("received stop signal via return error")
				} else {
					o.logger.With(
						"module", m,
					).With(
						"error", service.FailureCase(),
					).Error("module failed")
				}
				return
			}
		}
		o.logger.With("module", "unknown").With("error", service.FailureCase()).Error("module failed")
	}

	mgr.AddListener(services.NewManagerListener(
		func() {},
		func() {},
		servicesFailed,
	))

	handler := signals.NewHandler(o.serverConf.Log)
	go func() {
		handler.Loop()
		mgr.StopAsync()
	}()
	printRoutes(o.server.HTTP, o.logger)
	var stopErr error
	if err := mgr.StartAsync(ctx); err == nil {
		stopErr = mgr.AwaitStopped(ctx)
	}

	if stopErr != nil {
		return stopErr
	}

	if failed := mgr.ServicesByState()[services.Failed]; len(failed) > 0 {
		for _, f := range failed {
			if f.FailureCase() != modules.ErrStopProcess {
				// Details were reported via failure listener before
				return fmt.Errorf("services failed")
			}
		}
	}
	return nil
}

// newServerService constructs service from Server component.
// servicesToWaitFor is called when server is stopping, and should return all
// services that need to terminate before server actually stops.
// Passed server should not react on signals. Early return from Run function is considered to be an error.
func (o *BridgeFleet) newServerService(servicesToWaitFor func() []services.Service) services.Service {
	l := o.logger.With("service", "server")
	serverDone := make(chan error, 1)

	runFn := func(ctx context.Context) error {
		go func() {
			defer close(serverDone)
			rl := l
			if o.serverConf.HTTPListenAddress != "" {
				rl = rl.With("http-addr", fmt.Sprintf("%s:%d", o.serverConf.HTTPListenAddress, o.serverConf.HTTPListenPort))
			}
			rl.Info("running")
			serverDone <- o.server.Run()
		}()

		select {
		case <-ctx.Done():
			return nil
		case err := <-serverDone:
			if err != nil {
				return fmt.Errorf("server stopped unexpectedly: %w", err)
			}
			return nil
		}
	}

	stoppingFn := func(_ error) error {
		// wait until all modules are done, and then shutdown server.
		for _, s := range servicesToWaitFor() {
			_ = s.AwaitTerminated(context.Background())
		}

		// shutdown HTTP server (this also unblocks Run)
		o.server.Shutdown()

		// if not closed yet, wait until server stops.
		<-serverDone
		l.Info("server stopped")
		return nil
	}

	return services.NewBasicService(nil, runFn, stoppingFn)
}
