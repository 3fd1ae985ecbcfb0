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
	"context"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-json"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/stepflow/pkg/logutil"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/net/http/httpproxy"
)

// InitCmd sets up logging for a command and returns its root context.
func InitCmd(cmd *cobra.Command, logCfg *logutil.Config) (context.Context, context.CancelFunc) {
	if err := logutil.InitLogger(logCfg); err != nil {
		cmd.PrintErrf("stepflow: cannot set up logging: %v\n", errors.ErrorStack(err))
		os.Exit(1)
	}
	log.Info("logger ready",
		zap.String("command", cmd.Name()),
		zap.String("level", logCfg.Level),
		zap.String("file", logCfg.File))
	return context.WithCancel(context.Background())
}

// InitSignalHandling waits in the background for a termination signal. The
// first one starts a graceful stop through stop, cancel runs once the stop
// is done or a second signal arrives.
func InitSignalHandling(stop func() <-chan struct{}, cancel context.CancelFunc) {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go waitForStop(signals, stop, cancel)
}

func waitForStop(signals <-chan os.Signal, stop func() <-chan struct{}, cancel context.CancelFunc) {
	defer cancel()
	sig := <-signals
	log.Info("stopping", zap.Stringer("signal", sig))
	select {
	case <-stop():
		log.Info("stopped")
	case sig = <-signals:
		log.Warn("stop interrupted, exiting now", zap.Stringer("signal", sig))
	}
}

// LogHTTPProxies logs the proxy settings the etcd and database clients pick
// up from the environment.
func LogHTTPProxies() {
	if fields := findProxyFields(); len(fields) > 0 {
		log.Info("proxy settings found in environment", fields...)
	}
}

func findProxyFields() []zap.Field {
	cfg := httpproxy.FromEnvironment()
	var fields []zap.Field
	for _, setting := range [...]struct{ key, value string }{
		{"http_proxy", cfg.HTTPProxy},
		{"https_proxy", cfg.HTTPSProxy},
		{"no_proxy", cfg.NoProxy},
	} {
		if setting.value != "" {
			fields = append(fields, zap.String(setting.key, setting.value))
		}
	}
	return fields
}

// StrictDecodeFile decodes a toml config file into cfg and rejects keys that
// cfg has no field for.
func StrictDecodeFile(path, component string, cfg interface{}) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return errors.Annotatef(err, "decode %s config %s", component, path)
	}
	undecoded := meta.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, 0, len(undecoded))
	for _, key := range undecoded {
		keys = append(keys, key.String())
	}
	return errors.Errorf("%s config %s contained unknown configuration options: %s",
		component, path, strings.Join(keys, ", "))
}

// VerifyEtcdEndpoint checks that endpoint is an http or https URL with a host.
func VerifyEtcdEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return errors.Annotatef(err, "etcd endpoint %q", endpoint)
	}
	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return errors.Errorf("etcd endpoint %q: scheme must be http or https", endpoint)
	case u.Host == "":
		return errors.Errorf("etcd endpoint %q: missing host", endpoint)
	}
	return nil
}

// JSONPrint writes v to the command output as indented JSON.
func JSONPrint(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	cmd.Println(string(data))
	return nil
}

// CheckErr exits with a non-zero code on err. Cancellation is how a long
// running command stops, so it is not reported.
func CheckErr(err error) {
	if errors.Cause(err) == context.Canceled {
		return
	}
	cobra.CheckErr(err)
}
