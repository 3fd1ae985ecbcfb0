// Copyright 2026 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"encoding/json"
	"strings"
	"time"

	dmysql "github.com/go-sql-driver/mysql"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerror "github.com/pingcap/stepflow/pkg/errors"
	"github.com/pingcap/stepflow/pkg/logutil"
	"go.uber.org/zap"
)

const (
	// DefaultKeyPrefix is the etcd key prefix under which every stepflow key lives.
	DefaultKeyPrefix = "/stepflow"
	// DefaultEtcdEndpoint is the etcd endpoint used when none is configured.
	DefaultEtcdEndpoint = "http://127.0.0.1:2379"
)

// Progress store backends.
const (
	ProgressBackendEtcd   = "etcd"
	ProgressBackendMySQL  = "mysql"
	ProgressBackendSQLite = "sqlite"
)

var defaultConfig = &Config{
	Log: &logutil.Config{
		Level: "info",
	},
	Etcd: &EtcdConfig{
		Endpoints:   []string{DefaultEtcdEndpoint},
		DialTimeout: TomlDuration(5 * time.Second),
		KeyPrefix:   DefaultKeyPrefix,
		SessionTTL:  10,
	},
	Worker: &WorkerConfig{
		Concurrency:            4,
		MaxInflightSubmissions: 16,
		MaxStepDelay:           TomlDuration(3 * time.Second),
		RescanInterval:         TomlDuration(2 * time.Second),
	},
	Monitor: &MonitorConfig{
		PollInterval: TomlDuration(time.Second),
		Timeout:      TomlDuration(15 * time.Second),
	},
	Server: &ServerConfig{
		Addr: "127.0.0.1:8300",
	},
	Progress: &ProgressConfig{
		Backend: ProgressBackendEtcd,
	},
}

// Config is the configuration shared by every stepflow process.
type Config struct {
	Log      *logutil.Config `toml:"log" json:"log"`
	Etcd     *EtcdConfig     `toml:"etcd" json:"etcd"`
	Worker   *WorkerConfig   `toml:"worker" json:"worker"`
	Monitor  *MonitorConfig  `toml:"monitor" json:"monitor"`
	Server   *ServerConfig   `toml:"server" json:"server"`
	Progress *ProgressConfig `toml:"progress" json:"progress"`
}

// EtcdConfig holds the connection settings of the etcd cluster that stores
// progress records, the submission queue and dispatch statuses.
type EtcdConfig struct {
	Endpoints   []string     `toml:"endpoints" json:"endpoints"`
	DialTimeout TomlDuration `toml:"dial-timeout" json:"dial-timeout"`
	KeyPrefix   string       `toml:"key-prefix" json:"key-prefix"`
	// SessionTTL is the lease TTL in seconds backing a worker's claims.
	SessionTTL int `toml:"session-ttl" json:"session-ttl"`
}

// WorkerConfig configures the worker that executes submitted steps.
type WorkerConfig struct {
	// Concurrency is the number of goroutines of the step pool.
	Concurrency int `toml:"concurrency" json:"concurrency"`
	// MaxInflightSubmissions bounds the submissions a worker runs at once.
	MaxInflightSubmissions int `toml:"max-inflight-submissions" json:"max-inflight-submissions"`
	// MaxStepDelay is the upper bound of the simulated work of demo steps.
	MaxStepDelay TomlDuration `toml:"max-step-delay" json:"max-step-delay"`
	// RescanInterval is how often the queue is rescanned when no watch event arrives.
	RescanInterval TomlDuration `toml:"rescan-interval" json:"rescan-interval"`
}

// MonitorConfig configures the progress monitor.
type MonitorConfig struct {
	PollInterval TomlDuration `toml:"poll-interval" json:"poll-interval"`
	Timeout      TomlDuration `toml:"timeout" json:"timeout"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Addr string `toml:"addr" json:"addr"`
}

// ProgressConfig selects where progress records are kept. The submission
// queue and dispatch statuses always live in etcd.
type ProgressConfig struct {
	// Backend is one of "etcd", "mysql" and "sqlite".
	Backend string `toml:"backend" json:"backend"`
	// DSN is the data source name of the sql backends.
	DSN string `toml:"dsn" json:"dsn"`
}

// GetDefaultConfig returns a copy of the default configuration.
func GetDefaultConfig() *Config {
	return defaultConfig.Clone()
}

// Clone clones a configuration.
func (c *Config) Clone() *Config {
	str, err := c.Marshal()
	if err != nil {
		log.Panic("failed to marshal config", zap.Error(err))
	}
	clone := new(Config)
	if err := clone.Unmarshal([]byte(str)); err != nil {
		log.Panic("failed to unmarshal config", zap.Error(err))
	}
	return clone
}

// Marshal returns the json marshal format of a Config.
func (c *Config) Marshal() (string, error) {
	cfg, err := json.Marshal(c)
	if err != nil {
		return "", cerror.WrapError(cerror.ErrEncodeFailed, errors.Annotatef(err, "Marshal data: %v", c), "config")
	}
	return string(cfg), nil
}

// Unmarshal unmarshals into *Config from json marshal byte slice.
func (c *Config) Unmarshal(data []byte) error {
	err := json.Unmarshal(data, c)
	if err != nil {
		return cerror.WrapError(cerror.ErrDecodeFailed, err, "config")
	}
	return nil
}

// String implements fmt.Stringer.
func (c *Config) String() string {
	s, err := c.Marshal()
	if err != nil {
		log.Error("failed to marshal config", zap.Error(err))
		return ""
	}
	return s
}

// ValidateAndAdjust validates and adjusts the configuration. Missing
// sections and zero values take their defaults.
func (c *Config) ValidateAndAdjust() error {
	if c.Log == nil {
		c.Log = &logutil.Config{}
	}
	c.Log.Adjust()

	if c.Etcd == nil {
		c.Etcd = &EtcdConfig{}
	}
	if err := c.Etcd.validateAndAdjust(); err != nil {
		return err
	}
	if c.Worker == nil {
		c.Worker = &WorkerConfig{}
	}
	if err := c.Worker.validateAndAdjust(); err != nil {
		return err
	}
	if c.Monitor == nil {
		c.Monitor = &MonitorConfig{}
	}
	if err := c.Monitor.validateAndAdjust(); err != nil {
		return err
	}
	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultConfig.Server.Addr
	}
	if c.Progress == nil {
		c.Progress = &ProgressConfig{}
	}
	return c.Progress.validateAndAdjust()
}

func (c *ProgressConfig) validateAndAdjust() error {
	if c.Backend == "" {
		c.Backend = defaultConfig.Progress.Backend
	}
	switch c.Backend {
	case ProgressBackendEtcd:
	case ProgressBackendMySQL:
		if _, err := dmysql.ParseDSN(c.DSN); err != nil {
			return cerror.ErrInvalidServerOption.GenWithStackByArgs("progress dsn: " + err.Error())
		}
	case ProgressBackendSQLite:
		if strings.TrimSpace(c.DSN) == "" {
			return cerror.ErrInvalidServerOption.GenWithStackByArgs("progress dsn is required by sqlite")
		}
	default:
		return cerror.ErrInvalidServerOption.GenWithStackByArgs("unknown progress backend " + c.Backend)
	}
	return nil
}

func (c *EtcdConfig) validateAndAdjust() error {
	if len(c.Endpoints) == 0 {
		c.Endpoints = defaultConfig.Etcd.Endpoints
	}
	for _, ep := range c.Endpoints {
		if strings.TrimSpace(ep) == "" {
			return cerror.ErrInvalidServerOption.GenWithStackByArgs("empty etcd endpoint")
		}
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaultConfig.Etcd.DialTimeout
	}
	if c.DialTimeout < 0 {
		return cerror.ErrInvalidServerOption.GenWithStackByArgs("etcd dial-timeout must be positive")
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = defaultConfig.Etcd.KeyPrefix
	}
	if !strings.HasPrefix(c.KeyPrefix, "/") {
		return cerror.ErrInvalidServerOption.GenWithStackByArgs("etcd key-prefix must start with '/'")
	}
	c.KeyPrefix = strings.TrimSuffix(c.KeyPrefix, "/")
	if c.KeyPrefix == "" {
		return cerror.ErrInvalidServerOption.GenWithStackByArgs("etcd key-prefix must not be the root")
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = defaultConfig.Etcd.SessionTTL
	}
	if c.SessionTTL < 0 {
		return cerror.ErrInvalidServerOption.GenWithStackByArgs("etcd session-ttl must be positive")
	}
	return nil
}

func (c *WorkerConfig) validateAndAdjust() error {
	if c.Concurrency == 0 {
		c.Concurrency = defaultConfig.Worker.Concurrency
	}
	if c.Concurrency < 0 {
		return cerror.ErrInvalidServerOption.GenWithStackByArgs("worker concurrency must be positive")
	}
	if c.MaxInflightSubmissions == 0 {
		c.MaxInflightSubmissions = defaultConfig.Worker.MaxInflightSubmissions
	}
	if c.MaxInflightSubmissions < 0 {
		return cerror.ErrInvalidServerOption.GenWithStackByArgs(
			"worker max-inflight-submissions must be positive")
	}
	// zero is a valid step delay, it disables the simulated work.
	if c.MaxStepDelay < 0 {
		return cerror.ErrInvalidServerOption.GenWithStackByArgs("worker max-step-delay must not be negative")
	}
	if c.RescanInterval == 0 {
		c.RescanInterval = defaultConfig.Worker.RescanInterval
	}
	if c.RescanInterval < 0 {
		return cerror.ErrInvalidServerOption.GenWithStackByArgs("worker rescan-interval must be positive")
	}
	return nil
}

func (c *MonitorConfig) validateAndAdjust() error {
	if c.PollInterval == 0 {
		c.PollInterval = defaultConfig.Monitor.PollInterval
	}
	if c.Timeout == 0 {
		c.Timeout = defaultConfig.Monitor.Timeout
	}
	if c.PollInterval < 0 || c.Timeout < 0 {
		return cerror.ErrInvalidServerOption.GenWithStackByArgs("monitor durations must be positive")
	}
	if c.PollInterval > c.Timeout {
		return cerror.ErrInvalidServerOption.GenWithStackByArgs(
			"monitor poll-interval must not exceed timeout")
	}
	return nil
}
