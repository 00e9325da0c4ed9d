package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/burntcarrot/smartshare/discovery"
	"github.com/burntcarrot/smartshare/engine"
	"github.com/burntcarrot/smartshare/ide"
	"github.com/burntcarrot/smartshare/ot"
	"github.com/burntcarrot/smartshare/transport"
	"github.com/burntcarrot/smartshare/tui"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

var (
	// Client's flags
	flags Flags

	// Client's logger
	logger = logrus.New()
)

func main() {
	var err error
	flags, err = parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	logFile, debugLogFile, err := setupLogger(logger, flags.Debug)
	if err != nil {
		color.Red("Failed to set up logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLogFiles(logFile, debugLogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch flags.Mode {
	case "ide":
		err = runIDE(ctx)
	default:
		err = runTUI(ctx)
	}

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, engine.ErrDisconnected) {
		logger.WithError(err).Error("session ended")
		// In ide mode stdout is the plugin's; stderr is still free.
		fmt.Fprintln(os.Stderr, color.RedString("smartshare: %v", err))
		os.Exit(1)
	}
}

// connect finds the hub and dials the room.
func connect(ctx context.Context) (*transport.Conn, error) {
	server := flags.Server
	if flags.Discover {
		findCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		addr, err := discovery.Find(findCtx)
		if err != nil {
			return nil, err
		}
		logger.WithField("server", addr).Info("found hub over mDNS")
		server = addr
	}

	url := roomURL(server, flags.Room, flags.Secure)
	logger.WithFields(logrus.Fields{"url": url, "join": flags.Join}).Info("connecting")
	return transport.Dial(ctx, url, flags.Retry, logger)
}

// runIDE bridges an editor plugin on stdio to the room.
func runIDE(ctx context.Context) error {
	adapter := ide.New(os.Stdin, os.Stdout, logger)

	unit, join, err := adapter.Handshake()
	if err != nil {
		return err
	}

	conn, err := connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	session := engine.NewSession(adapter, conn, engine.Config{Unit: unit, Join: join, Logger: logger})

	go conn.ReadLoop()
	go func() {
		// The plugin closing stdin ends the session.
		if err := adapter.Listen(); err != nil {
			logger.WithError(err).Error("failed to read from plugin")
		}
		cancel()
	}()

	return session.Run(ctx)
}

// runTUI shares a document through the terminal editor.
func runTUI(ctx context.Context) error {
	var text string
	if flags.File != "" && !flags.Join {
		content, err := os.ReadFile(flags.File)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		text = string(content)
	}

	conn, err := connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	adapter := tui.New(fmt.Sprintf("smartshare: %s @ %s", flags.Room, flags.Server), text)
	session := engine.NewSession(adapter, conn, engine.Config{Unit: ot.Chars, Join: flags.Join, Logger: logger})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go conn.ReadLoop()

	sessionErr := make(chan error, 1)
	go func() {
		err := session.Run(ctx)
		if errors.Is(err, engine.ErrDisconnected) {
			adapter.SetStatus("disconnected from the hub")
		}
		sessionErr <- err
	}()

	uiErr := adapter.Run()
	cancel()
	err = <-sessionErr

	if flags.File != "" {
		if werr := os.WriteFile(flags.File, []byte(adapter.CurrentText()), 0644); werr != nil { // skipcq: GSC-G306
			logger.WithError(werr).Errorf("failed to save to %s", flags.File)
		} else {
			logger.Infof("saved document to %s", flags.File)
		}
	}
	logger.WithField("document", adapter.CurrentText()).Debug("final document state")

	if uiErr != nil {
		return uiErr
	}
	return err
}
