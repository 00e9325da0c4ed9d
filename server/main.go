package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/burntcarrot/smartshare/discovery"
	"github.com/burntcarrot/smartshare/hub"
	"github.com/burntcarrot/smartshare/ot"
	"github.com/burntcarrot/smartshare/store"
	"github.com/fatih/color"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Flags represents the command-line flags that are passed to the hub.
type Flags struct {
	Addr         string
	Store        string
	Unit         string
	SaveInterval time.Duration
	MDNS         bool
	Debug        bool
}

// parseFlags parses command-line flags.
func parseFlags(args []string) (Flags, error) {
	fs := flag.NewFlagSet("smartshare-hub", flag.ContinueOnError)

	addr := fs.String("addr", ":8080", "Server's network address")
	storeDSN := fs.String("store", "memory://", "Where rooms are saved: memory://, bolt://path, redis://host/db or postgres://...")
	unit := fs.String("unit", "bytes", "Offset unit rooms keep their documents in (bytes or chars)")
	saveInterval := fs.Duration("save-interval", 10*time.Second, "How often changed rooms are saved")
	mdns := fs.Bool("mdns", false, "Announce the hub on the local network over mDNS")
	debug := fs.Bool("debug", false, "Enable debugging mode to show more verbose logs")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	return Flags{
		Addr:         *addr,
		Store:        *storeDSN,
		Unit:         *unit,
		SaveInterval: *saveInterval,
		MDNS:         *mdns,
		Debug:        *debug,
	}, nil
}

// newRouter serves rooms under /rooms/{room}, the default room at /, and a
// health check.
func newRouter(h *hub.Hub) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/rooms/{room}", h)
	router.HandleFunc("/healthz", h.Healthz).Methods(http.MethodGet)
	router.Handle("/", h)
	return router
}

// listenPort returns the TCP port in a listen address such as ":8080".
func listenPort(addr string) (int, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(port)
}

func main() {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if flags.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	if err := run(flags, logger); err != nil {
		color.Red("smartshare hub: %v\n", err)
		os.Exit(1)
	}
}

func run(flags Flags, logger *logrus.Logger) error {
	unit, err := ot.ParseOffsetUnit(flags.Unit)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, flags.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.WithError(err).Error("failed to close store")
		}
	}()

	h := hub.New(st, hub.Config{Unit: unit, SaveInterval: flags.SaveInterval, Logger: logger})
	defer h.Close()

	if flags.MDNS {
		port, err := listenPort(flags.Addr)
		if err != nil {
			return fmt.Errorf("mDNS needs a port in -addr: %w", err)
		}
		announcement, err := discovery.Announce(port, logger)
		if err != nil {
			return err
		}
		defer announcement.Shutdown()
	}

	srv := &http.Server{
		Addr:              flags.Addr,
		Handler:           newRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()

	color.Green("%s >> smartshare hub listening on %s (%s offsets, store %s)\n", time.Now().Format(time.ANSIC), flags.Addr, unit, flags.Store)

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	color.Yellow("%s >> shutting down\n", time.Now().Format(time.ANSIC))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
