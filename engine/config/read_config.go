package config

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-ini/ini"
	"github.com/lattice-mc/netsync/engine/consts"
	"github.com/lattice-mc/netsync/engine/nslog"
	"github.com/pkg/errors"
)

const (
	_DEFAULT_CONFIG_FILE = "netsync.ini"
	_DEFAULT_HTTP_IP     = "127.0.0.1"
	_DEFAULT_LOG_LEVEL   = "info"
	_DEFAULT_REDIS_HOST  = "127.0.0.1:6379"
	_DEFAULT_STORAGE_DB  = "netsync"
)

var (
	configFilePath = _DEFAULT_CONFIG_FILE
	netsyncConfig  *NetsyncConfig
	configLock     sync.Mutex
)

// ServerConfig describes this node
type ServerConfig struct {
	ID        string
	Address   string
	Port      int
	HTTPIp    string
	HTTPPort  int
	LogFile   string
	LogStderr bool
	LogLevel  string
}

// RedisConfig defines the shared redis used by the message bus and the shared caches
type RedisConfig struct {
	Host     string
	Password string
	DB       int
}

// StorageConfig defines fields of durable storage config
type StorageConfig struct {
	Type string // Type of storage (memory, mysql, mongodb)
	Url  string // Connection URL (mysql DSN, mongodb url)
	DB   string // Database name (mongodb)
}

// WorkersConfig defines the shared worker pool
type WorkersConfig struct {
	PoolSize     int
	StoreTimeout time.Duration
}

// RegistryConfig defines heartbeat and reaper timings
type RegistryConfig struct {
	HeartbeatInterval time.Duration
	ServerTTL         time.Duration
	ReapInterval      time.Duration
}

// FriendsConfig defines friend request timings
type FriendsConfig struct {
	RequestTTL    time.Duration
	SweepInterval time.Duration
	Retention     time.Duration
}

// NetsyncConfig defines the total config file structure
type NetsyncConfig struct {
	Server   ServerConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Workers  WorkersConfig
	Registry RegistryConfig
	Friends  FriendsConfig
}

// SetConfigFile sets the config file path (netsync.ini by default)
func SetConfigFile(f string) {
	configFilePath = f
}

// GetConfigDir returns the directory of the config file
func GetConfigDir() string {
	dir, _ := path.Split(configFilePath)
	return dir
}

// GetConfigFilePath returns the config file path
func GetConfigFilePath() string {
	return configFilePath
}

// Get returns the total config, reading the config file on first use
func Get() *NetsyncConfig {
	configLock.Lock()
	defer configLock.Unlock()
	if netsyncConfig == nil {
		netsyncConfig = readNetsyncConfig(configFilePath)
	}
	return netsyncConfig
}

// Reload forces the config file to be read again
func Reload() *NetsyncConfig {
	configLock.Lock()
	netsyncConfig = nil
	configLock.Unlock()

	return Get()
}

// Load reads a config file without touching the cached config. Invalid files are returned as errors.
func Load(file string) (cfg *NetsyncConfig, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("%v", r)
		}
	}()
	cfg = readNetsyncConfig(file)
	return
}

// Default returns a config holding only default values
func Default() *NetsyncConfig {
	cfg := &NetsyncConfig{}
	readServerConfig(nil, &cfg.Server)
	readRedisConfig(nil, &cfg.Redis)
	readStorageConfig(nil, &cfg.Storage)
	readWorkersConfig(nil, &cfg.Workers)
	readRegistryConfig(nil, &cfg.Registry)
	readFriendsConfig(nil, &cfg.Friends)
	return cfg
}

// DumpPretty format config to string in pretty format
func DumpPretty(cfg interface{}) string {
	s, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err.Error()
	}
	return string(s)
}

func readNetsyncConfig(file string) *NetsyncConfig {
	config := Default()
	nslog.Infof("Using config file: %s", file)
	iniFile, err := ini.Load(file)
	checkConfigError(err, "")

	for _, sec := range iniFile.Sections() {
		secName := strings.ToLower(sec.Name())
		switch secName {
		case "default":
			// keys outside of any section are not used
		case "server":
			readServerConfig(sec, &config.Server)
		case "redis":
			readRedisConfig(sec, &config.Redis)
		case "storage":
			readStorageConfig(sec, &config.Storage)
		case "workers":
			readWorkersConfig(sec, &config.Workers)
		case "registry":
			readRegistryConfig(sec, &config.Registry)
		case "friends":
			readFriendsConfig(sec, &config.Friends)
		default:
			nslog.Errorf("unknown section: %s", secName)
		}
	}

	checkConfigError(Validate(config), "")
	return config
}

func sectionKeys(sec *ini.Section) []*ini.Key {
	if sec == nil {
		return nil
	}
	return sec.Keys()
}

func readSeconds(key *ini.Key, def time.Duration) time.Duration {
	return time.Second * time.Duration(key.MustInt(int(def/time.Second)))
}

func readServerConfig(sec *ini.Section, sc *ServerConfig) {
	if sec == nil {
		sc.Address = "127.0.0.1"
		sc.Port = 25565
		sc.HTTPIp = _DEFAULT_HTTP_IP
		sc.HTTPPort = 0 // status server not enabled by default
		sc.LogFile = "netsync.log"
		sc.LogStderr = true
		sc.LogLevel = _DEFAULT_LOG_LEVEL
	}

	for _, key := range sectionKeys(sec) {
		name := strings.ToLower(key.Name())
		if name == "id" {
			sc.ID = key.MustString(sc.ID)
		} else if name == "address" {
			sc.Address = key.MustString(sc.Address)
		} else if name == "port" {
			sc.Port = key.MustInt(sc.Port)
		} else if name == "http_ip" {
			sc.HTTPIp = key.MustString(sc.HTTPIp)
		} else if name == "http_port" {
			sc.HTTPPort = key.MustInt(sc.HTTPPort)
		} else if name == "log_file" {
			sc.LogFile = key.MustString(sc.LogFile)
		} else if name == "log_stderr" {
			sc.LogStderr = key.MustBool(sc.LogStderr)
		} else if name == "log_level" {
			sc.LogLevel = key.MustString(sc.LogLevel)
		} else {
			nslog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readRedisConfig(sec *ini.Section, rc *RedisConfig) {
	if sec == nil {
		rc.Host = _DEFAULT_REDIS_HOST
	}

	for _, key := range sectionKeys(sec) {
		name := strings.ToLower(key.Name())
		if name == "host" {
			rc.Host = key.MustString(rc.Host)
		} else if name == "password" {
			rc.Password = key.MustString(rc.Password)
		} else if name == "db" {
			db, err := key.Int()
			checkConfigError(err, fmt.Sprintf("redis db must be integer: %s", key.String()))
			rc.DB = db
		} else {
			nslog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readStorageConfig(sec *ini.Section, sc *StorageConfig) {
	if sec == nil {
		sc.Type = "memory"
		sc.DB = _DEFAULT_STORAGE_DB
	}

	for _, key := range sectionKeys(sec) {
		name := strings.ToLower(key.Name())
		if name == "type" {
			sc.Type = strings.ToLower(key.MustString(sc.Type))
		} else if name == "url" {
			sc.Url = key.MustString(sc.Url)
		} else if name == "db" {
			sc.DB = key.MustString(sc.DB)
		} else {
			nslog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readWorkersConfig(sec *ini.Section, wc *WorkersConfig) {
	if sec == nil {
		wc.PoolSize = consts.ASYNC_DEFAULT_POOL_SIZE
		wc.StoreTimeout = consts.STORE_DEFAULT_TIMEOUT
	}

	for _, key := range sectionKeys(sec) {
		name := strings.ToLower(key.Name())
		if name == "pool_size" {
			wc.PoolSize = key.MustInt(wc.PoolSize)
		} else if name == "store_timeout_ms" {
			wc.StoreTimeout = time.Millisecond * time.Duration(key.MustInt(int(wc.StoreTimeout/time.Millisecond)))
		} else {
			nslog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readRegistryConfig(sec *ini.Section, rc *RegistryConfig) {
	if sec == nil {
		rc.HeartbeatInterval = consts.REGISTRY_HEARTBEAT_INTERVAL
		rc.ServerTTL = consts.REGISTRY_SERVER_TTL
		rc.ReapInterval = consts.REGISTRY_REAP_INTERVAL
	}

	for _, key := range sectionKeys(sec) {
		name := strings.ToLower(key.Name())
		if name == "heartbeat_interval" {
			rc.HeartbeatInterval = readSeconds(key, rc.HeartbeatInterval)
		} else if name == "server_ttl" {
			rc.ServerTTL = readSeconds(key, rc.ServerTTL)
		} else if name == "reap_interval" {
			rc.ReapInterval = readSeconds(key, rc.ReapInterval)
		} else {
			nslog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readFriendsConfig(sec *ini.Section, fc *FriendsConfig) {
	if sec == nil {
		fc.RequestTTL = consts.FRIEND_REQUEST_TTL
		fc.SweepInterval = consts.FRIEND_SWEEP_INTERVAL
		fc.Retention = consts.FRIEND_REQUEST_RETENTION
	}

	for _, key := range sectionKeys(sec) {
		name := strings.ToLower(key.Name())
		if name == "request_ttl" {
			fc.RequestTTL = readSeconds(key, fc.RequestTTL)
		} else if name == "sweep_interval" {
			fc.SweepInterval = readSeconds(key, fc.SweepInterval)
		} else if name == "retention" {
			fc.Retention = readSeconds(key, fc.Retention)
		} else {
			nslog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

// Validate checks the config for values a node cannot run with
func Validate(cfg *NetsyncConfig) error {
	if cfg.Server.ID == "" {
		return errors.New("id is not set in server config")
	}
	if strings.Contains(cfg.Server.ID, "|:|") {
		return errors.Errorf("server id %q must not contain the message delimiter", cfg.Server.ID)
	}
	switch cfg.Storage.Type {
	case "memory":
	case "mysql":
		if cfg.Storage.Url == "" {
			return errors.Errorf("url is not set in %s storage config", cfg.Storage.Type)
		}
	case "mongodb":
		if cfg.Storage.Url == "" {
			return errors.Errorf("url is not set in %s storage config", cfg.Storage.Type)
		}
		if cfg.Storage.DB == "" {
			return errors.Errorf("db is not set in %s storage config", cfg.Storage.Type)
		}
	default:
		return errors.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}
	if cfg.Workers.PoolSize <= 0 {
		return errors.Errorf("invalid pool_size: %d", cfg.Workers.PoolSize)
	}
	if cfg.Registry.ServerTTL <= cfg.Registry.HeartbeatInterval {
		return errors.Errorf("server_ttl %s must be longer than heartbeat_interval %s", cfg.Registry.ServerTTL, cfg.Registry.HeartbeatInterval)
	}
	return nil
}

func checkConfigError(err error, msg string) {
	if err != nil {
		if msg == "" {
			msg = err.Error()
		}
		nslog.Panicf("read config error: %s", msg)
	}
}
