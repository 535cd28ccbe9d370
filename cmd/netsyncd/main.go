package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/lattice-mc/netsync/engine/binutil"
	"github.com/lattice-mc/netsync/engine/config"
	"github.com/lattice-mc/netsync/engine/node"
	"github.com/lattice-mc/netsync/engine/nslog"
)

var args struct {
	configFile string
	logLevel   string
	daemon     bool
}

func parseArgs() {
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.StringVar(&args.logLevel, "log", "", "set log level, will override log level in config")
	flag.BoolVar(&args.daemon, "d", false, "run in daemon mode")
	flag.Parse()
}

func main() {
	parseArgs()
	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}

	cfg := config.Get()
	if args.logLevel != "" {
		cfg.Server.LogLevel = args.logLevel
	}
	if args.daemon {
		daemoncontext := binutil.Daemonize()
		defer daemoncontext.Release()
	}

	binutil.SetupLog(cfg.Server.ID, cfg.Server.LogLevel, cfg.Server.LogFile, cfg.Server.LogStderr)
	nslog.Infof("netsyncd %s starting with config:\n%s", cfg.Server.ID, config.DumpPretty(cfg))

	n, err := node.New(cfg, node.Options{})
	if err != nil {
		nslog.Fatalf("create node failed: %v", err)
	}
	if err := n.Start(context.Background()); err != nil {
		n.Stop()
		nslog.Fatalf("start node failed: %v", err)
	}

	waitSignals()
	n.Stop()
	nslog.Sync()
}

func waitSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			// netsyncd holds no reloadable state
			nslog.Infof("ignored signal: %s", sig)
			continue
		}
		nslog.Infof("received signal %s, stopping", sig)
		return
	}
}
