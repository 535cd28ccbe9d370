package main

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/cmd/netsyncctl/process"
	"github.com/lattice-mc/netsync/engine/bus"
	"github.com/lattice-mc/netsync/engine/config"
	"github.com/lattice-mc/netsync/engine/kvcache"
)

func detectLocalDaemons() []process.Process {
	procs, err := process.FindByName(daemonName)
	checkErrorOrQuit(err, "list processes failed")
	return procs
}

func status() {
	procs := detectLocalDaemons()
	showMsg("%d %s running locally", len(procs), daemonName)
	for _, proc := range procs {
		cmdlineSlice, err := proc.CmdlineSlice()
		var cmdline string
		if err == nil {
			cmdline = strings.Join(cmdlineSlice, " ")
		} else {
			cmdline = fmt.Sprintf("get cmdline failed: %v", err)
		}
		showMsg("\t%-10d%-16s%s", proc.Pid(), proc.Executable(), cmdline)
	}

	cfg := config.Get()
	showNetworkServers(cfg)
	if cfg.Server.HTTPPort != 0 {
		showNodeStatus(cfg)
	}
}

func openCache(cfg *config.NetsyncConfig) *kvcache.RedisCache {
	return kvcache.NewRedisCache(bus.NewRedisPool(cfg.Redis.Host, cfg.Redis.Password, cfg.Redis.DB))
}

func showNetworkServers(cfg *config.NetsyncConfig) {
	cache := openCache(cfg)
	defer cache.Close()

	servers, err := cache.Servers()
	checkErrorOrQuit(err, "read online servers failed")
	sort.Slice(servers, func(i, j int) bool {
		return servers[i].ID < servers[j].ID
	})
	showMsg("%d servers online in the network", len(servers))
	for _, srv := range servers {
		showMsg("\t%-20s%s:%d", srv.ID, srv.Address, srv.Port)
	}
}

func showNodeStatus(cfg *config.NetsyncConfig) {
	url := fmt.Sprintf("http://%s:%d/status", cfg.Server.HTTPIp, cfg.Server.HTTPPort)
	client := http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		showMsg("%s status unavailable: %v", cfg.Server.ID, err)
		return
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	checkErrorOrQuit(err, "read status failed")
	showMsg("%s status:\n%s", cfg.Server.ID, body)
}

// showRank prints the rank copied to the shared player_ranks hash by the player's last node
func showRank(player string) {
	id, err := uuid.Parse(player)
	checkErrorOrQuit(err, "invalid player uuid")
	cache := openCache(config.Get())
	defer cache.Close()

	rank, ok, err := cache.GetRank(id)
	checkErrorOrQuit(err, "read player rank failed")
	if !ok {
		showMsgAndQuit("no shared rank for %s", id)
	}
	showMsg("%s: %s", id, rank)
}
