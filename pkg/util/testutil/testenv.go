package testutil

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/bridgefleet/bridgefleet/pkg/services/commands"
	"github.com/bridgefleet/bridgefleet/pkg/storage"
	bfpebble "github.com/bridgefleet/bridgefleet/pkg/storage/pebble"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	gin.SetMode(gin.TestMode)
}

// TestEnv provides a fleet server environment for integration testing.
// Storage is in-memory and the HTTP surface runs on an httptest server.
// The dashboard routes are mounted without token auth; auth has its own
// tests.
type TestEnv struct {
	db     *pebble.DB
	Broker storage.KVBroker

	PendingStore storage.KeyValue[commands.PendingCommand]
	HistoryStore storage.KeyValue[commands.DispatchRecord]
	DeviceStore  storage.KeyValue[commands.Device]

	CommandService *commands.CommandService

	HTTPServer *httptest.Server
	BaseURL    string

	Logger *slog.Logger
}

// NewTestEnv creates a test environment with the command dispatch
// surface wired the way the server wires it.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	db, err := pebble.Open("", &pebble.Options{
		FS: vfs.NewMem(),
	})
	require.NoError(t, err)

	broker := bfpebble.NewKVBroker(db)
	logger := slog.Default()

	env := &TestEnv{
		db:     db,
		Broker: broker,
		Logger: logger,
	}

	env.PendingStore = storage.NewJSONKV[commands.PendingCommand](logger, broker.KeyValue("pendingcommands"))
	env.HistoryStore = storage.NewJSONKV[commands.DispatchRecord](logger, broker.KeyValue("dispatchhistory"))
	env.DeviceStore = storage.NewJSONKV[commands.Device](logger, broker.KeyValue("devices"))

	env.CommandService = commands.NewCommandService(
		logger.With("service", "commands"),
		env.PendingStore,
		env.HistoryStore,
		env.DeviceStore,
	)

	router := mux.NewRouter()
	env.CommandService.ConfigureHTTP(router)

	engine := gin.New()
	env.CommandService.ConfigureDashboard(engine.Group("/api/v1alpha1/dashboard"))
	router.PathPrefix("/api/v1alpha1/dashboard").Handler(engine)

	env.HTTPServer = httptest.NewServer(router)
	env.BaseURL = env.HTTPServer.URL

	t.Cleanup(func() {
		env.HTTPServer.Close()
		_ = env.db.Close()
	})

	return env
}
