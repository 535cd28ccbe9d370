// netsyncctl inspects and controls netsyncd nodes.
//
//	netsyncctl status
//	netsyncctl stop | kill
//	netsyncctl broadcast <component>
//	netsyncctl send <player-uuid> <server-id>
//	netsyncctl rank <player-uuid>
package main

import (
	"flag"
	"os"
	"strings"

	"github.com/lattice-mc/netsync/engine/config"
)

const daemonName = "netsyncd"

var args struct {
	configFile string
}

func parseArgs() {
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.Parse()
}

func main() {
	parseArgs()
	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}
	args := flag.Args()
	if len(args) == 0 {
		showMsg("no command to execute")
		flag.Usage()
		os.Exit(exitUsage)
	}
	showMsg("arguments: %s", strings.Join(args, " "))

	cmd := args[0]
	switch cmd {
	case "status":
		status()
	case "stop":
		stop()
	case "kill":
		kill()
	case "broadcast":
		if len(args) < 2 {
			showMsgAndQuit("should specify the component to broadcast")
		}
		broadcast(strings.Join(args[1:], " "))
	case "send":
		if len(args) != 3 {
			showMsgAndQuit("should specify one player uuid and one server id")
		}
		send(args[1], args[2])
	case "rank":
		if len(args) != 2 {
			showMsgAndQuit("should specify one player uuid")
		}
		showRank(args[1])
	default:
		showMsgAndQuit("unknown command: %s", cmd)
	}
}
