package main

import (
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/writer"
)

// Flags represents the command-line flags that are passed to smartshare's client.
type Flags struct {
	Server   string
	Discover bool
	Secure   bool
	Room     string
	Join     bool
	Mode     string
	File     string
	Retry    time.Duration
	Debug    bool
}

// parseFlags parses command-line flags.
func parseFlags(args []string) (Flags, error) {
	fs := flag.NewFlagSet("smartshare", flag.ContinueOnError)

	serverAddr := fs.String("server", "localhost:8080", "The network address of the hub")
	discover := fs.Bool("discover", false, "Find a hub on the local network over mDNS instead of using -server")
	useSecureConn := fs.Bool("secure", false, "Enable a secure WebSocket connection (wss://)")
	room := fs.String("room", "default", "The room to share or join")
	join := fs.Bool("join", false, "Join the room's document instead of sharing your own")
	mode := fs.String("mode", "tui", "Editor to attach: tui, or ide to talk to a plugin over stdio")
	file := fs.String("file", "", "The file to load the shared content from, saved again on exit (tui mode)")
	retry := fs.Duration("retry", 30*time.Second, "How long to keep retrying the connection to the hub")
	enableDebug := fs.Bool("debug", false, "Enable debugging mode to show more verbose logs")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	if *mode != "tui" && *mode != "ide" {
		return Flags{}, fmt.Errorf("unknown mode %q", *mode)
	}

	return Flags{
		Server:   *serverAddr,
		Discover: *discover,
		Secure:   *useSecureConn,
		Room:     *room,
		Join:     *join,
		Mode:     *mode,
		File:     *file,
		Retry:    *retry,
		Debug:    *enableDebug,
	}, nil
}

// roomURL returns the WebSocket URL of a room on the hub at server.
func roomURL(server, room string, secure bool) string {
	u := url.URL{Scheme: "ws", Host: server, Path: "/rooms/" + room}
	if secure {
		u.Scheme = "wss"
	}
	return u.String()
}

// ensureDirExists ensures that a directory exists, and if it isn't present, it tries to create a new one.
func ensureDirExists(path string) (bool, error) {
	// Check if the directory exists
	if _, err := os.Stat(path); err == nil {
		return true, nil
	}

	// Create the directory
	err := os.Mkdir(path, 0700)
	if err != nil {
		return false, err
	}

	return true, nil
}

// setupLogger initializes the client's logger (logrus). Nothing goes to the
// terminal: it belongs to the editor, or to the plugin protocol in ide mode.
func setupLogger(logger *logrus.Logger, debug bool) (*os.File, *os.File, error) {
	logPath := "smartshare.log"
	debugLogPath := "smartshare-debug.log"

	homeDir, err := os.UserHomeDir()
	if err == nil {
		dir := filepath.Join(homeDir, ".smartshare")
		if ok, err := ensureDirExists(dir); err != nil {
			return nil, nil, err
		} else if ok {
			logPath = filepath.Join(dir, logPath)
			debugLogPath = filepath.Join(dir, debugLogPath)
		}
	}

	// Open the log file and create if it does not exist.
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644) // skipcq: GSC-G302
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	// Create a separate log file for verbose logs.
	debugLogFile, err := os.OpenFile(debugLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644) // skipcq: GSC-G302
	if err != nil {
		logFile.Close()
		return nil, nil, fmt.Errorf("open debug log file: %w", err)
	}

	logger.SetOutput(io.Discard)
	logger.SetFormatter(&logrus.JSONFormatter{})
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	logger.AddHook(&writer.Hook{
		Writer: logFile,
		LogLevels: []logrus.Level{
			logrus.WarnLevel,
			logrus.ErrorLevel,
			logrus.FatalLevel,
			logrus.PanicLevel,
		},
	})
	logger.AddHook(&writer.Hook{
		Writer: debugLogFile,
		LogLevels: []logrus.Level{
			logrus.TraceLevel,
			logrus.DebugLevel,
			logrus.InfoLevel,
		},
	})

	return logFile, debugLogFile, nil
}

// closeLogFiles closes the log files created by the client.
// closeLogFiles is meant to be used for defer calls.
func closeLogFiles(logFile, debugLogFile *os.File) {
	if err := logFile.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close log file: %s\n", err)
		return
	}

	if err := debugLogFile.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close debug log file: %s\n", err)
		return
	}
}
