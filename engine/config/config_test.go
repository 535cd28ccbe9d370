package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/lattice-mc/netsync/engine/nslog"
)

func init() {
	SetConfigFile("../../netsync.ini.sample")
}

func writeConfig(t *testing.T, content string) string {
	file := filepath.Join(t.TempDir(), "netsync.ini")
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return file
}

func TestLoad(t *testing.T) {
	config := Get()
	nslog.Debugf("netsync config: \n%s", DumpPretty(config))
	if config == nil {
		t.FailNow()
	}
	assert.Equal(t, "lobby-1", config.Server.ID)
	assert.Equal(t, 25565, config.Server.Port)
	assert.Equal(t, "memory", config.Storage.Type)
	assert.Equal(t, 64, config.Workers.PoolSize)
	assert.Equal(t, 5*time.Second, config.Workers.StoreTimeout)
	assert.Equal(t, 35*time.Second, config.Registry.ServerTTL)
	assert.Equal(t, 5*time.Minute, config.Friends.RequestTTL)
}

func TestReload(t *testing.T) {
	Get()
	config := Reload()
	assert.Equal(t, "lobby-1", config.Server.ID)
}

func TestMissingKeysTakeDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "[server]\nid=hub-2\n"))
	assert.Equal(t, nil, err)
	def := Default()
	assert.Equal(t, "hub-2", cfg.Server.ID)
	assert.Equal(t, def.Redis, cfg.Redis)
	assert.Equal(t, def.Registry, cfg.Registry)
	assert.Equal(t, def.Friends, cfg.Friends)
	assert.Equal(t, def.Server.LogLevel, cfg.Server.LogLevel)
}

func TestUnknownKey(t *testing.T) {
	_, err := Load(writeConfig(t, "[server]\nid=hub-2\ncolor=red\n"))
	assert.NotEqual(t, nil, err)
}

func TestMissingServerID(t *testing.T) {
	_, err := Load(writeConfig(t, "[redis]\nhost=localhost:6379\n"))
	assert.NotEqual(t, nil, err)
}

func TestValidateStorage(t *testing.T) {
	cfg := Default()
	cfg.Server.ID = "lobby-1"
	assert.Equal(t, nil, Validate(cfg))

	cfg.Storage.Type = "mysql"
	assert.NotEqual(t, nil, Validate(cfg))
	cfg.Storage.Url = "netsync:netsync@tcp(127.0.0.1:3306)/netsync"
	assert.Equal(t, nil, Validate(cfg))

	cfg.Storage.Type = "filesystem"
	assert.NotEqual(t, nil, Validate(cfg))
}

func TestValidateHeartbeat(t *testing.T) {
	cfg := Default()
	cfg.Server.ID = "lobby-1"
	cfg.Registry.ServerTTL = cfg.Registry.HeartbeatInterval
	assert.NotEqual(t, nil, Validate(cfg))
}

func TestSetConfigFile(t *testing.T) {
	old := GetConfigFilePath()
	SetConfigFile("conf/netsync.ini")
	assert.Equal(t, "conf/", GetConfigDir())
	SetConfigFile(old)
}
