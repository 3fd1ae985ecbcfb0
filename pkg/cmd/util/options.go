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

package util

import (
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/stepflow/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// CommonOptions defines the flags shared by every command that talks to the
// stepflow cluster.
type CommonOptions struct {
	ConfigFile    string
	EtcdEndpoints string
	LogLevel      string
	LogFile       string
	KeyPrefix     string

	ProgressBackend string
	ProgressDSN     string
}

// NewCommonOptions creates new common options.
func NewCommonOptions() *CommonOptions {
	return &CommonOptions{}
}

// AddFlags binds the common flags to cmd.
func (o *CommonOptions) AddFlags(cmd *cobra.Command) {
	defaultConfig := config.GetDefaultConfig()
	cmd.Flags().StringVar(&o.ConfigFile, "config", "", "Path of the configuration file")
	cmd.Flags().StringVar(&o.EtcdEndpoints, "etcd", strings.Join(defaultConfig.Etcd.Endpoints, ","),
		"Set the etcd endpoints to use. Use ',' to separate multiple endpoints")
	cmd.Flags().StringVar(&o.LogLevel, "log-level", defaultConfig.Log.Level, "log level (etc: debug|info|warn|error)")
	cmd.Flags().StringVar(&o.LogFile, "log-file", defaultConfig.Log.File, "log file path")
	cmd.Flags().StringVar(&o.KeyPrefix, "key-prefix", defaultConfig.Etcd.KeyPrefix,
		"etcd key prefix under which stepflow keeps its data")
	cmd.Flags().StringVar(&o.ProgressBackend, "progress-backend", defaultConfig.Progress.Backend,
		"where progress records are kept (etc: etcd|mysql|sqlite)")
	cmd.Flags().StringVar(&o.ProgressDSN, "progress-dsn", "", "data source name of the sql progress backend")
}

// OverrideFunc applies a command specific flag that was explicitly set.
type OverrideFunc func(flag *pflag.Flag, cfg *config.Config) error

// LoadConfig builds the configuration of a command. The defaults are
// overwritten by the config file, which is in turn overwritten by the flags
// explicitly set on the command line.
func (o *CommonOptions) LoadConfig(cmd *cobra.Command, component string, override OverrideFunc) (*config.Config, error) {
	cfg := config.GetDefaultConfig()
	if len(o.ConfigFile) > 0 {
		if err := StrictDecodeFile(o.ConfigFile, component, cfg); err != nil {
			return nil, err
		}
	}

	var err error
	cmd.Flags().Visit(func(flag *pflag.Flag) {
		if err != nil {
			return
		}
		switch flag.Name {
		case "etcd":
			cfg.Etcd.Endpoints = strings.Split(o.EtcdEndpoints, ",")
		case "log-level":
			cfg.Log.Level = o.LogLevel
		case "log-file":
			cfg.Log.File = o.LogFile
		case "key-prefix":
			cfg.Etcd.KeyPrefix = o.KeyPrefix
		case "progress-backend":
			cfg.Progress.Backend = o.ProgressBackend
		case "progress-dsn":
			cfg.Progress.DSN = o.ProgressDSN
		case "config":
		default:
			if override != nil {
				err = override(flag, cfg)
			}
		}
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	if err := cfg.ValidateAndAdjust(); err != nil {
		return nil, errors.Trace(err)
	}
	for i, ep := range cfg.Etcd.Endpoints {
		ep = strings.TrimSpace(ep)
		if err := VerifyEtcdEndpoint(ep); err != nil {
			return nil, err
		}
		cfg.Etcd.Endpoints[i] = ep
	}
	return cfg, nil
}
