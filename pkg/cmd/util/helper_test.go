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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/stepflow/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestProxyFields(t *testing.T) {
	revIndex := map[string]int{
		"http_proxy":  0,
		"https_proxy": 1,
		"no_proxy":    2,
	}
	envs := []string{"http_proxy", "https_proxy", "no_proxy"}
	envPreset := []string{"http://127.0.0.1:8080", "https://127.0.0.1:8443", "localhost,127.0.0.1"}

	// Each bit of the mask decides whether the env at that index is set.
	for mask := 0; mask <= 0b111; mask++ {
		for i, env := range envs {
			if (1<<i)&mask != 0 {
				t.Setenv(env, envPreset[i])
			} else {
				t.Setenv(env, "")
			}
		}

		for _, field := range findProxyFields() {
			idx, ok := revIndex[field.Key]
			require.True(t, ok)
			require.NotEqual(t, 0, (1<<idx)&mask)
			require.Equal(t, envPreset[idx], field.String)
		}
	}
}

func TestVerifyEtcdEndpoint(t *testing.T) {
	t.Parallel()

	require.Error(t, VerifyEtcdEndpoint(""))
	require.Error(t, VerifyEtcdEndpoint("\n hi"))
	require.Error(t, VerifyEtcdEndpoint("http://"))
	require.Error(t, VerifyEtcdEndpoint("https://"))
	require.Error(t, VerifyEtcdEndpoint("postgres://postgres@localhost/cargo_registry"))
	require.NoError(t, VerifyEtcdEndpoint("http://127.0.0.1:2379"))
	require.NoError(t, VerifyEtcdEndpoint("https://etcd-0:2379"))
}

func writeConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "stepflow.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestStrictDecodeValidFile(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
[log]
level = "warn"
file = "/tmp/stepflow.log"
max-size = 200

[etcd]
endpoints = ["http://10.0.0.1:2379", "http://10.0.0.2:2379"]
dial-timeout = "3s"
key-prefix = "/demo"

[worker]
concurrency = 8
max-step-delay = "100ms"

[monitor]
poll-interval = "500ms"
timeout = "30s"

[server]
addr = "0.0.0.0:8300"
`)
	cfg := config.GetDefaultConfig()
	require.NoError(t, StrictDecodeFile(path, "test", cfg))
	require.Equal(t, "warn", cfg.Log.Level)
	require.Equal(t, 200, cfg.Log.FileMaxSize)
	require.Equal(t, []string{"http://10.0.0.1:2379", "http://10.0.0.2:2379"}, cfg.Etcd.Endpoints)
	require.Equal(t, config.TomlDuration(3*time.Second), cfg.Etcd.DialTimeout)
	require.Equal(t, "/demo", cfg.Etcd.KeyPrefix)
	require.Equal(t, 8, cfg.Worker.Concurrency)
	require.Equal(t, config.TomlDuration(100*time.Millisecond), cfg.Worker.MaxStepDelay)
	require.Equal(t, config.TomlDuration(30*time.Second), cfg.Monitor.Timeout)
	require.Equal(t, "0.0.0.0:8300", cfg.Server.Addr)
}

func TestStrictDecodeInvalidFile(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
unknown = "128.0.0.1:1234"

[log.unknown]
max-size = 200
`)
	cfg := config.GetDefaultConfig()
	err := StrictDecodeFile(path, "test", cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "contained unknown configuration options")
	require.Contains(t, err.Error(), "log.unknown.max-size")

	path = writeConfigFile(t, "[worker\n")
	require.Error(t, StrictDecodeFile(path, "test", config.GetDefaultConfig()))
}

func newTestCommand(o *CommonOptions, concurrency *int) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	o.AddFlags(cmd)
	cmd.Flags().IntVar(concurrency, "concurrency", 0, "")
	return cmd
}

func TestLoadConfigPrecedence(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
[log]
level = "warn"

[etcd]
endpoints = ["http://10.0.0.1:2379"]
key-prefix = "/from-file"

[worker]
concurrency = 8
`)
	o := NewCommonOptions()
	var concurrency int
	cmd := newTestCommand(o, &concurrency)
	require.NoError(t, cmd.ParseFlags([]string{
		"--config", path,
		"--etcd", "http://10.0.0.2:2379, http://10.0.0.3:2379",
		"--concurrency", "2",
		"--progress-backend", "sqlite",
		"--progress-dsn", "/tmp/stepflow-progress.db",
	}))

	cfg, err := o.LoadConfig(cmd, "test", func(flag *pflag.Flag, cfg *config.Config) error {
		if flag.Name == "concurrency" {
			cfg.Worker.Concurrency = concurrency
		}
		return nil
	})
	require.NoError(t, err)
	// Set on the command line.
	require.Equal(t, []string{"http://10.0.0.2:2379", "http://10.0.0.3:2379"}, cfg.Etcd.Endpoints)
	require.Equal(t, 2, cfg.Worker.Concurrency)
	require.Equal(t, config.ProgressBackendSQLite, cfg.Progress.Backend)
	require.Equal(t, "/tmp/stepflow-progress.db", cfg.Progress.DSN)
	// Taken from the file since the flags were not set.
	require.Equal(t, "warn", cfg.Log.Level)
	require.Equal(t, "/from-file", cfg.Etcd.KeyPrefix)
	// Defaults.
	require.Equal(t, config.TomlDuration(15*time.Second), cfg.Monitor.Timeout)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()

	o := NewCommonOptions()
	var concurrency int
	cmd := newTestCommand(o, &concurrency)
	require.NoError(t, cmd.ParseFlags([]string{"--etcd", "127.0.0.1:2379"}))
	_, err := o.LoadConfig(cmd, "test", nil)
	require.Error(t, err)

	o = NewCommonOptions()
	cmd = newTestCommand(o, &concurrency)
	require.NoError(t, cmd.ParseFlags([]string{"--key-prefix", "relative"}))
	_, err = o.LoadConfig(cmd, "test", nil)
	require.Error(t, err)

	o = NewCommonOptions()
	cmd = newTestCommand(o, &concurrency)
	require.NoError(t, cmd.ParseFlags([]string{"--concurrency", "3"}))
	_, err = o.LoadConfig(cmd, "test", func(*pflag.Flag, *config.Config) error {
		return errors.New("bad flag")
	})
	require.ErrorContains(t, err, "bad flag")

	o = NewCommonOptions()
	cmd = newTestCommand(o, &concurrency)
	require.NoError(t, cmd.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "missing.toml")}))
	_, err = o.LoadConfig(cmd, "test", nil)
	require.Error(t, err)
}
