package server

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KyleBrandon/irrigation-server/config"
	"github.com/KyleBrandon/irrigation-server/internal/bus"
	"github.com/KyleBrandon/irrigation-server/internal/database"
	"github.com/KyleBrandon/irrigation-server/internal/gpio"
	"github.com/KyleBrandon/irrigation-server/internal/jobs"
	"github.com/KyleBrandon/irrigation-server/services/debounce"
	"github.com/KyleBrandon/irrigation-server/services/flow"
	"github.com/KyleBrandon/irrigation-server/services/health"
	"github.com/KyleBrandon/irrigation-server/services/leak"
	"github.com/KyleBrandon/irrigation-server/services/power"
	"github.com/KyleBrandon/irrigation-server/services/status"
	"github.com/KyleBrandon/irrigation-server/services/tank"
	"github.com/KyleBrandon/irrigation-server/services/telemetry"
	"github.com/KyleBrandon/irrigation-server/services/valve"
	"github.com/KyleBrandon/irrigation-server/services/zone"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DEFAULT_SERVER_PORT          = "8080"
	DEFAULT_LOG_FILE_LOCATION    = "./irrigation-server.log"
	DEFAULT_CONFIG_FILE_LOCATION = "./config/config.json"

	// ShutdownGrace bounds the synchronous cleanup on termination; every
	// open valve must be closed before the process exits.
	ShutdownGrace = 5 * time.Second
)

// Used by "flag" to read command line arguments
var (
	cmdLineFlagMockGPIO bool
	cmdLineFlagLogLevel string
)

type ServerConfig struct {
	mux                *http.ServeMux
	ServerPort         string
	DatabaseURL        string
	UseMockGPIO        bool
	LogFileLocation    string
	ConfigFileLocation string
	Logger             *slog.Logger
	LoggerLevel        *slog.LevelVar
	LogFile            *os.File

	Settings     config.Config
	Events       *bus.Bus
	Hardware     gpio.Controller
	Queries      *database.Queries
	DBConnection *sql.DB

	zones     *zone.Controller
	power     *power.Scheduler
	flow      *flow.Sampler
	tanks     *tank.Aggregator
	leaks     *leak.Detector
	telemetry *telemetry.Publisher
}

// init will read and initialize the global command line variables
func init() {
	flag.BoolVar(&cmdLineFlagMockGPIO, "use_mock_gpio", false, "Run against in-memory relays instead of the Raspberry Pi header.")
	flag.StringVar(&cmdLineFlagLogLevel, "log_level", config.DefaultLogLevel.String(), "The log level to start the server at")
}

// InitializeServer wires the controller together and serves until a
// termination signal arrives.
func InitializeServer() error {
	slog.Debug(">>InitializeServer")
	defer slog.Debug("<<InitializeServer")

	sc, err := initializeServerConfig()
	if err != nil {
		return err
	}

	defer sc.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc.wireServices(ctx)

	sc.runServer(ctx)

	return nil
}

func (sc *ServerConfig) wireServices(ctx context.Context) {
	sc.mux = http.NewServeMux()

	valveStore, sessionStore, leakStore, stateStore := sc.stores()

	// one valve per configured relay, grouped by zone
	valvesByZone := make(map[string][]*valve.Valve)
	for _, zoneConfig := range sc.Settings.Zones {
		for _, valveConfig := range zoneConfig.Valves {
			v := valve.New(valveConfig.ID, zoneConfig.ID, valveConfig.Pin, sc.Hardware, sc.Events, valveStore)
			valvesByZone[zoneConfig.ID] = append(valvesByZone[zoneConfig.ID], v)
		}
	}

	sc.power = power.New(sc.Events, stateStore)

	manager := jobs.NewJobManager()
	sc.zones = zone.New(sc.Settings.Zones, valvesByZone, sc.Settings.System, manager, sc.Events, sessionStore, sc.power)
	sc.power.SetZoneController(sc.zones)

	debouncer := debounce.New(&requestExecutor{zones: sc.zones, power: sc.power, events: sc.Events})

	sampler, err := flow.New(sc.Settings.Flow, sc.Hardware, sc.Events)
	if err != nil {
		slog.Error("failed to attach the flow meter, flow sensing disabled", "error", err)
	} else {
		sc.flow = sampler
		sc.flow.StartSampling(ctx)
	}

	sc.tanks = tank.New(sc.Settings.Tanks, tank.NewHelperRangeFinder(sc.Settings.RangeFinderCommand), sc.Events)
	sc.tanks.StartMonitoring(ctx)

	sc.leaks = leak.New(sc.Events, leakStore)

	sc.power.StartMonitoring(ctx)

	publisher, err := telemetry.Start(sc.Settings.MQTT, sc.Events)
	if err != nil {
		slog.Error("failed to start telemetry, continuing without it", "error", err)
	} else {
		sc.telemetry = publisher
	}

	healthHandler := health.NewHandler()
	healthHandler.RegisterRoutes(sc.mux)

	zoneHandler := zone.NewHandler(sc.zones, debouncer)
	zoneHandler.RegisterRoutes(sc.mux)

	powerHandler := power.NewHandler(sc.power, debouncer)
	powerHandler.RegisterRoutes(sc.mux)

	statusHandler := status.NewHandler(sc.zones, sc.tanks, sc.leaks, sc.power, sc.Events, sc.Settings.OriginPatterns)
	statusHandler.RegisterRoutes(sc.mux)

	sc.mux.Handle("GET /metrics", promhttp.Handler())
}

// stores returns the per-service store interfaces, backed by PostgreSQL
// when DATABASE_URL is set and no-ops otherwise.
func (sc *ServerConfig) stores() (valve.EventStore, zone.SessionStore, leak.LeakStore, power.StateStore) {
	if sc.Queries == nil {
		slog.Warn("no database configured, event history disabled")
		nop := database.Nop{}
		return nop, nop, nop, nop
	}

	return sc.Queries, sc.Queries, sc.Queries, sc.Queries
}

// runServer will start listening for connections
func (sc *ServerConfig) runServer(ctx context.Context) {
	slog.Info(">>runServer")
	defer slog.Info("<<runServer")

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", sc.ServerPort),
		Handler: sc.mux,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("Starting server", "port", sc.ServerPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Server failed", "error", err)
	}

	// termination is the only fatal path and it must leave every valve
	// closed
	sc.zones.StopAll()

	if sc.telemetry != nil {
		sc.telemetry.Stop()
	}
}

func initializeServerConfig() (*ServerConfig, error) {
	slog.Info(">>initializeServerConfig")
	defer slog.Info("<<initializeServerConfig")

	sc := &ServerConfig{}

	// MUST BE FIRST
	sc.readEnvironmentVariables()

	sc.configureLogger()

	settings, err := config.LoadConfigSettings(sc.ConfigFileLocation)
	if err != nil {
		slog.Error("failed to load config file", "error", err)
		return nil, err
	}
	sc.Settings = settings

	sc.Events = bus.New()

	if sc.UseMockGPIO {
		sc.Hardware = gpio.NewMockController()
	} else {
		hardware, err := gpio.NewHardwareController()
		if err != nil {
			slog.Error("failed to open the GPIO device", "error", err)
			return nil, err
		}
		sc.Hardware = hardware
	}

	sc.openDatabase()

	return sc, nil
}

func (sc *ServerConfig) readEnvironmentVariables() {
	err := godotenv.Load()
	if err != nil {
		slog.Warn("could not load .env file", "error", err)
	}

	sc.UseMockGPIO = cmdLineFlagMockGPIO
	sc.DatabaseURL = os.Getenv("DATABASE_URL")

	sc.ServerPort = os.Getenv("PORT")
	if len(sc.ServerPort) == 0 {
		sc.ServerPort = DEFAULT_SERVER_PORT
	}

	sc.LogFileLocation = os.Getenv("LOG_FILE_LOCATION")
	if len(sc.LogFileLocation) == 0 {
		sc.LogFileLocation = DEFAULT_LOG_FILE_LOCATION
	}

	sc.ConfigFileLocation = os.Getenv("CONFIG_FILE_LOCATION")
	if len(sc.ConfigFileLocation) == 0 {
		sc.ConfigFileLocation = DEFAULT_CONFIG_FILE_LOCATION
	}
}

func (sc *ServerConfig) configureLogger() {
	logFile, err := os.OpenFile(sc.LogFileLocation, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}

	currentLevel := new(slog.LevelVar)
	currentLevel.Set(config.DefaultLogLevel)
	if err := currentLevel.UnmarshalText([]byte(cmdLineFlagLogLevel)); err != nil {
		slog.Warn("invalid log level, using default", "log_level", cmdLineFlagLogLevel)
	}

	logger := slog.New(slog.NewTextHandler(logFile,
		&slog.HandlerOptions{Level: currentLevel}))
	slog.SetDefault(logger)

	sc.Logger = logger
	sc.LoggerLevel = currentLevel
	sc.LogFile = logFile
}

func (sc *ServerConfig) openDatabase() {
	if len(sc.DatabaseURL) == 0 {
		return
	}

	db, err := sql.Open("postgres", sc.DatabaseURL)
	if err != nil {
		slog.Error("failed to open database connection", "error", err)
		return
	}

	sc.DBConnection = db
	sc.Queries = database.New(db)
}

func (sc *ServerConfig) close() {
	if sc.Hardware != nil {
		if err := sc.Hardware.Close(); err != nil {
			slog.Error("failed to close the GPIO device", "error", err)
		}
	}

	if sc.DBConnection != nil {
		sc.DBConnection.Close()
	}

	if sc.LogFile != nil {
		sc.LogFile.Close()
	}
}

// requestExecutor adapts the debouncer's resolved actions onto the zone
// controller and the power scheduler.
type requestExecutor struct {
	zones  *zone.Controller
	power  *power.Scheduler
	events *bus.Bus
}

func (e *requestExecutor) ActivateZone(id string) error {
	return e.zones.ActivateZone(id)
}

func (e *requestExecutor) PowerOn() {
	e.power.SetPower(true)
}

func (e *requestExecutor) RevertZone(id string) {
	e.events.Publish(bus.EventZoneReverted, bus.ZoneReverted{ZoneID: id})
}

func (e *requestExecutor) EnabledZoneCount() int {
	return e.zones.EnabledZoneCount()
}
