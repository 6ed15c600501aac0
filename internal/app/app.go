package app

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/timely-app/timelyd/internal/authorization"
	"github.com/timely-app/timelyd/internal/autoclock"
	"github.com/timely-app/timelyd/internal/config"
	"github.com/timely-app/timelyd/internal/controllers"
	"github.com/timely-app/timelyd/internal/geofence"
	"github.com/timely-app/timelyd/internal/logger"
	"github.com/timely-app/timelyd/internal/middleware"
	"github.com/timely-app/timelyd/internal/notify"
	"github.com/timely-app/timelyd/internal/reminders"
	"github.com/timely-app/timelyd/internal/sqlkeeper"
	"github.com/timely-app/timelyd/internal/storage"
	"github.com/timely-app/timelyd/internal/taskqueue"
	"go.uber.org/zap"
)

// Server is the timelyd daemon: the control API plus the background loops
// for geofence events, reminder rescheduling and notification firing.
type Server struct {
	srv *http.Server
	ctx context.Context
}

func NewServer(ctx context.Context) *Server {
	server := new(Server)
	server.ctx = ctx

	return server
}

// suppressorHandle breaks the construction cycle between the notification
// service and the reminder scheduler that owns the suppression flag.
type suppressorHandle struct {
	scheduler *reminders.Scheduler
}

func (h *suppressorHandle) Suppressed() bool {
	return h.scheduler != nil && h.scheduler.Suppressed()
}

func (server *Server) Serve() {
	// create and initialize a new option instance
	option := config.NewOptions()
	option.ParseFlags()

	// get a new logger
	nLogger, err := logger.NewLogger(option.LogLevel())
	if err != nil {
		panic(err)
	}
	defer nLogger.Sync()

	// initialize the keeper instance
	keeper := sqlkeeper.NewSQLKeeper(option.DatabasePath, nLogger)

	var settingsKeeper storage.Keeper
	var notifyKeeper notify.Keeper

	if keeper != nil {
		defer keeper.Close()
		settingsKeeper = keeper
		notifyKeeper = keeper
	}

	// initialize the settings storage instance
	settings := storage.NewSettingsStorage(settingsKeeper, nLogger)
	server.seedDefaultRadius(settings, option.DefaultRadius(), nLogger)

	settleDelay := parseDuration(option.SettleDelay(), 200*time.Millisecond, "settle delay", nLogger)
	minDwell := parseDuration(option.MinDwellInterval(), 2*time.Minute, "min dwell interval", nLogger)
	notifyInterval := parseDuration(option.NotifyInterval(), 30*time.Second, "notify interval", nLogger)

	// single-slot queue serializing reminder reschedules
	queue := taskqueue.NewQueue(nLogger)

	suppressor := &suppressorHandle{}
	notifications := notify.NewService(notifyKeeper, settings, notify.LogPresenter{Log: nLogger},
		suppressor, notifyInterval, nLogger)

	scheduler := reminders.NewScheduler(notifications, queue, settleDelay, nLogger)
	suppressor.scheduler = scheduler

	// bind the native locator helper (or the fallback stub) exactly once
	locator := geofence.Probe(option.GeofenceHelper, nLogger)
	bridge := geofence.NewBridge(locator, nLogger)
	defer bridge.Close()

	tokens := authorization.NewTokenSource(settings, nLogger)
	remote := controllers.NewExtController(option.APIAddress, tokens, nLogger)

	entitlements := autoclock.NewStaticEntitlements(option.Entitlements())

	controller := autoclock.NewController(bridge, remote, settings, entitlements,
		notifications, option.GeofenceID(), minDwell, nLogger)
	defer controller.Close()

	basecontr := controllers.NewBaseController(settings, controller, scheduler, notifications, remote, nLogger)
	reqLog := middleware.NewReqLog(nLogger)

	r := chi.NewRouter()
	r.Use(reqLog.RequestLogger)
	r.Mount("/", basecontr.Route())

	go bridge.RunBackground(server.ctx)
	go queue.RunBackground(server.ctx)
	go notifications.RunBackground(server.ctx)

	// restore monitoring state from the previous run
	controller.Resume(server.ctx)

	// start the server on the specified address
	server.startServer(r, option.RunAddr())

	// wait for the shutdown signal
	<-server.ctx.Done()
	server.Shutdown(nLogger)
}

func (server *Server) seedDefaultRadius(settings *storage.SettingsStorage, value string, log *logger.Logger) {
	if _, err := settings.WorkplaceRadius(); err == nil {
		return
	}

	radius, err := strconv.Atoi(value)
	if err != nil {
		log.Info("invalid default radius: ", zap.String("value", value), zap.Error(err))
		return
	}

	if err := settings.SetWorkplaceRadius(radius); err != nil {
		log.Info("cannot seed default radius: ", zap.Error(err))
	}
}

func parseDuration(value string, fallback time.Duration, name string, log *logger.Logger) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Info("invalid duration option, using default",
			zap.String("option", name), zap.String("value", value), zap.Duration("default", fallback))
		return fallback
	}

	return d
}

func (server *Server) startServer(router chi.Router, address string) {
	const (
		oneMegabyte = 1 << 20
		readTimeout = 3 * time.Second
	)

	server.srv = &http.Server{
		Addr:                         address,
		Handler:                      router,
		ReadHeaderTimeout:            readTimeout,
		WriteTimeout:                 readTimeout,
		IdleTimeout:                  readTimeout,
		ReadTimeout:                  readTimeout,
		MaxHeaderBytes:               oneMegabyte, // 1 MB
		DisableGeneralOptionsHandler: false,
	}

	go func() {
		if err := server.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()
}

// Shutdown stops the control API gracefully.
func (server *Server) Shutdown(log *logger.Logger) {
	log.Info("shutting down the daemon")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.srv.Shutdown(ctx); err != nil {
		log.Info("server shutdown error: ", zap.Error(err))
	}
}
