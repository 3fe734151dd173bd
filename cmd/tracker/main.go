// Command tracker fuses platform telemetry with camera pixel offsets and
// publishes steering corrections.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/optical.position/internal/config"
	"github.com/banshee-data/optical.position/internal/db"
	"github.com/banshee-data/optical.position/internal/monitoring"
	"github.com/banshee-data/optical.position/internal/version"
)

var (
	configFile     = flag.String("config", "", "Path to JSON configuration file (see "+config.DefaultConfigPath+")")
	listen         = flag.String("listen", "", "HTTP listen address (overrides config)")
	devMode        = flag.Bool("dev", false, "Use a synthetic serial link instead of the real port")
	debugMode      = flag.Bool("debug", false, "Log every platform reading and correction")
	versionFlag    = flag.Bool("version", false, "Print version information and exit")
	replayFile     = flag.String("replay", "", "Replay feeds from a PCAP capture instead of listening (requires -tags=pcap)")
	replayRealtime = flag.Bool("replay-realtime", true, "Pace PCAP replay by capture timestamps")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] [migrate <action>]\n\n", os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintln(os.Stderr)
	db.PrintMigrateHelp(os.Stderr)
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *versionFlag {
		fmt.Println("tracker", version.String())
		return
	}

	cfg, err := loadConfig(*configFile, *listen)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(flag.Args()[1:], cfg.GetDBPath(), os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}
	if flag.NArg() > 0 {
		usage()
		os.Exit(2)
	}

	monitoring.SetDebug(*debugMode)
	log.Printf("tracker %s", version.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := runOptions{
		dev:            *devMode,
		replay:         *replayFile,
		replayRealtime: *replayRealtime,
	}
	if err := run(ctx, cfg, opts); err != nil {
		log.Fatalf("tracker: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

// loadConfig reads path, or starts from defaults when path is empty, and
// applies command line overrides.
func loadConfig(path, listen string) (*config.TrackerConfig, error) {
	cfg := config.EmptyTrackerConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadTrackerConfig(path); err != nil {
			return nil, err
		}
	}
	if listen != "" {
		if err := cfg.SetString("listen", listen); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
