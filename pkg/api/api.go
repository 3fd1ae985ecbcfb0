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

package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pingcap/stepflow/pkg/monitor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Launcher starts a new job and returns its id.
type Launcher interface {
	Launch(ctx context.Context) (string, error)
}

// Reporter reports the progress of a job.
type Reporter interface {
	Report(ctx context.Context, jobID string) (monitor.Report, error)
}

// Cleaner removes the progress record of a job.
type Cleaner interface {
	Delete(ctx context.Context, jobID string) error
}

// OpenAPIV1 serves the jobs api.
type OpenAPIV1 struct {
	launcher Launcher
	reporter Reporter
	cleaner  Cleaner
}

// NewOpenAPIV1 creates an OpenAPIV1.
func NewOpenAPIV1(launcher Launcher, reporter Reporter, cleaner Cleaner) OpenAPIV1 {
	return OpenAPIV1{launcher: launcher, reporter: reporter, cleaner: cleaner}
}

// RegisterRoutes registers the jobs api and the metrics endpoint on router.
func RegisterRoutes(router *gin.Engine, api OpenAPIV1, gatherer prometheus.Gatherer) {
	v1 := router.Group("/api/v1")
	v1.Use(LogMiddleware(), ErrorHandleMiddleware())

	v1.GET("/health", api.health)

	jobsGroup := v1.Group("/jobs")
	jobsGroup.POST("", api.launchJob)
	jobsGroup.GET("/:job_id", api.getJob)
	jobsGroup.DELETE("/:job_id", api.deleteJob)

	router.Any("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// NewRouter creates a gin engine serving the jobs api.
func NewRouter(api OpenAPIV1, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	RegisterRoutes(router, api, gatherer)
	return router
}

// launchJob launches a new job
// @Router /api/v1/jobs [post]
func (h *OpenAPIV1) launchJob(c *gin.Context) {
	jobID, err := h.launcher.Launch(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.IndentedJSON(http.StatusCreated, &LaunchResponse{JobID: jobID})
}

// getJob reports the progress of a job
// @Router /api/v1/jobs/{job_id} [get]
func (h *OpenAPIV1) getJob(c *gin.Context) {
	report, err := h.reporter.Report(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.IndentedJSON(http.StatusOK, report)
}

// deleteJob removes the progress record of a job
// @Router /api/v1/jobs/{job_id} [delete]
func (h *OpenAPIV1) deleteJob(c *gin.Context) {
	if err := h.cleaner.Delete(c.Request.Context(), c.Param("job_id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, &EmptyResponse{})
}

// health checks the server is up
// @Router /api/v1/health [get]
func (h *OpenAPIV1) health(c *gin.Context) {
	c.JSON(http.StatusOK, &EmptyResponse{})
}
