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

package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pingcap/stepflow/pkg/api"
	"github.com/pingcap/stepflow/pkg/config"
	"github.com/pingcap/stepflow/pkg/dispatch"
	"github.com/pingcap/stepflow/pkg/etcd"
	"github.com/pingcap/stepflow/pkg/leakutil"
	"github.com/pingcap/stepflow/pkg/monitor"
	"github.com/pingcap/stepflow/pkg/workflow"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	leakutil.SetUpLeakTest(m)
}

func TestDefaultCfg(t *testing.T) {
	cmd := new(cobra.Command)
	o := newOptions()
	o.addFlags(cmd)

	require.Nil(t, cmd.ParseFlags([]string{}))
	require.Nil(t, o.complete(cmd))

	defaultCfg := config.GetDefaultConfig()
	require.Nil(t, defaultCfg.ValidateAndAdjust())
	require.Equal(t, defaultCfg, o.cfg)
	require.False(t, o.withWorker)
}

func TestParseCfg(t *testing.T) {
	cmd := new(cobra.Command)
	o := newOptions()
	o.addFlags(cmd)

	require.Nil(t, cmd.ParseFlags([]string{"--addr", "127.5.5.1:8833", "--with-worker"}))
	require.Nil(t, o.complete(cmd))
	require.Equal(t, "127.5.5.1:8833", o.cfg.Server.Addr)
	require.True(t, o.withWorker)
}

func TestAddUnknownFlag(t *testing.T) {
	cmd := new(cobra.Command)
	o := newOptions()
	o.addFlags(cmd)

	require.Regexp(t, ".*unknown flag: --pd.*", cmd.ParseFlags([]string{"--pd="}).Error())
}

type testClient struct {
	t      *testing.T
	client *http.Client
	base   string
}

func (c *testClient) do(method, path string, out interface{}) int {
	req, err := http.NewRequest(method, c.base+path, nil)
	require.NoError(c.t, err)
	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if out != nil {
		require.NoError(c.t, json.Unmarshal(body, out), string(body))
	}
	return resp.StatusCode
}

func TestServerRun(t *testing.T) {
	s := &etcd.Tester{}
	s.SetUpTest(t)
	defer s.TearDownTest(t)
	ctx := s.Ctx(t)

	cfg := config.GetDefaultConfig()
	cfg.Etcd.Endpoints = []string{s.ClientURL.String()}
	cfg.Worker.MaxStepDelay = config.TomlDuration(10 * time.Millisecond)
	require.NoError(t, cfg.ValidateAndAdjust())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	runCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() {
		errCh <- newServer(cfg, true).run(runCtx, lis)
	}()

	c := &testClient{
		t:      t,
		client: &http.Client{Transport: &http.Transport{DisableKeepAlives: true}},
		base:   "http://" + lis.Addr().String(),
	}
	require.Eventually(t, func() bool {
		resp, err := c.client.Get(c.base + "/api/v1/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 10*time.Millisecond)

	var launched api.LaunchResponse
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/v1/jobs", &launched))

	var report monitor.Report
	require.Eventually(t, func() bool {
		report = monitor.Report{}
		return c.do(http.MethodGet, "/api/v1/jobs/"+launched.JobID, &report) == http.StatusOK &&
			report.Status == dispatch.StatusSucceeded
	}, 10*time.Second, 10*time.Millisecond)
	require.Equal(t, launched.JobID, report.JobID)
	require.Equal(t, workflow.DemoTask4, report.Step)
	require.Equal(t, 100, report.Percent)

	require.Equal(t, http.StatusOK, c.do(http.MethodDelete, "/api/v1/jobs/"+launched.JobID, nil))
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/metrics", nil))

	cancel()
	require.NoError(t, <-errCh)
}
