package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/wellmon/server"
)

func main() {
	nominalDefaultConfigDB := "$HOME/wellmon/config.sqlite"
	nominalDefaultScoreDB := "$HOME/wellmon/scores.sqlite"

	parser := argparse.NewParser("wellmon", "Personnel wellness monitoring system")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration database file", Default: nominalDefaultConfigDB})
	scoreFile := parser.String("s", "scores", &argparse.Options{Help: "Score database file", Default: nominalDefaultScoreDB})
	port := parser.String("p", "port", &argparse.Options{Help: "HTTP listen port", Default: ":8080"})
	detectorURL := parser.String("d", "detector", &argparse.Options{Help: "Base URL of the emotion detector service", Default: "http://127.0.0.1:8090"})
	detectorTimeoutSec := parser.Int("", "detectorTimeout", &argparse.Options{Help: "Detector request timeout in seconds", Default: 10})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/var/lib"
	}
	expandHome := func(path string) string {
		if len(path) >= 5 && path[:5] == "$HOME" {
			return filepath.Join(home, path[5:])
		}
		return path
	}
	configDBFile := expandHome(*configFile)
	scoreDBFile := expandHome(*scoreFile)
	if err := os.MkdirAll(filepath.Dir(configDBFile), 0770); err != nil {
		logger.Errorf("Failed to create directory for %v: %v", configDBFile, err)
		os.Exit(1)
	}
	if err := os.MkdirAll(filepath.Dir(scoreDBFile), 0770); err != nil {
		logger.Errorf("Failed to create directory for %v: %v", scoreDBFile, err)
		os.Exit(1)
	}

	srv, err := server.NewServer(logger, server.Options{
		ConfigDBFilename: configDBFile,
		ScoreDBFilename:  scoreDBFile,
		DetectorURL:      *detectorURL,
		DetectorTimeout:  time.Duration(*detectorTimeoutSec) * time.Second,
	})
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	srv.ListenForKillSignals()

	// Tell systemd that we're alive
	daemon.SdNotify(false, daemon.SdNotifyReady)

	if err := srv.ListenHTTP(*port); err != nil {
		logger.Errorf("ListenHTTP returned: %v", err)
		os.Exit(1)
	}
	<-srv.ShutdownComplete
}
