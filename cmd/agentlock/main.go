package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/rs/zerolog"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogger builds the process logger. Without --log-file nothing is
// emitted; the audit log, not the logger, is the record of decisions.
func initLogger(debug bool, logFilePath string) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	output := io.Discard
	if logFilePath != "" {
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		output = file
	}
	return zerolog.New(output).With().Timestamp().Logger()
}
