package main

import (
	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/engine/bus"
	"github.com/lattice-mc/netsync/engine/config"
	"github.com/lattice-mc/netsync/engine/proto"
)

func openBus() *bus.Bus {
	cfg := config.Get()
	return bus.New(bus.NewRedisTransport(cfg.Redis.Host, cfg.Redis.Password, cfg.Redis.DB))
}

func broadcast(component string) {
	b := openBus()
	defer b.Close()
	err := b.Publish(proto.TopicBroadcast, proto.Broadcast{Component: component}.Encode())
	checkErrorOrQuit(err, "broadcast failed")
	showMsg("broadcast sent")
}

func send(player string, serverID string) {
	id, err := uuid.Parse(player)
	checkErrorOrQuit(err, "invalid player uuid")
	b := openBus()
	defer b.Close()
	err = b.Publish(proto.TopicPlayerSend, proto.PlayerSend{UUID: id, ServerID: serverID}.Encode())
	checkErrorOrQuit(err, "send failed")
	showMsg("asked proxy to send %s to %s", id, serverID)
}
