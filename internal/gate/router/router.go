// Copyright 2025 Gatehouse Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package router

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-gatehouse/gatehouse/internal/gate/service"
	"github.com/go-gatehouse/gatehouse/internal/pkg/telegram"
	httpx "github.com/go-gatehouse/gatehouse/pkg/http"
	"github.com/go-gatehouse/gatehouse/pkg/http/middleware"
	"github.com/go-gatehouse/gatehouse/pkg/log"
	"github.com/go-gatehouse/gatehouse/pkg/metrics"
	"github.com/go-gatehouse/gatehouse/pkg/ratelimit"
	"github.com/go-gatehouse/gatehouse/pkg/version"
)

const defaultBodyLimit = 1 << 20 // the API only takes small JSON and form posts

// Router builds the fiber app serving the public funnel surface and the
// internal handoff and admin surface.
type Router struct {
	httpConf  *httpx.Http
	services  *service.Services
	limiter   ratelimit.Limiter
	validator *telegram.InitDataValidator
	metrics   *metrics.Server
}

func NewRouter(
	httpConf *httpx.Http,
	services *service.Services,
	limiter ratelimit.Limiter,
	validator *telegram.InitDataValidator,
	metricsServer *metrics.Server,
) *Router {
	return &Router{
		httpConf:  httpConf,
		services:  services,
		limiter:   limiter,
		validator: validator,
		metrics:   metricsServer,
	}
}

func (rt *Router) Router() *fiber.App {
	bodyLimit := rt.httpConf.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = defaultBodyLimit
	}

	app := fiber.New(fiber.Config{
		AppName:               "Gatehouse",
		DisableStartupMessage: true,
		ReadTimeout:           time.Duration(rt.httpConf.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(rt.httpConf.WriteTimeout) * time.Second,
		IdleTimeout:           time.Duration(rt.httpConf.IdleTimeout) * time.Second,
		BodyLimit:             bodyLimit,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
	})

	app.Use(
		middleware.ExceptionMiddleware,
		middleware.RequestMiddleware(),
		middleware.RealIPMiddleware(),
		middleware.TraceMiddleware(),
		middleware.CorsMiddleware(),
	)
	app.Use(httpx.AccessLogFormat(log.GetLogger().Desugar(), rt.httpConf))
	app.Use(middleware.UnifiedResponseMiddleware())

	if rt.httpConf.PProf {
		app.Use(pprof.New())
	}

	if rt.httpConf.ExposeMetrics && rt.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(
			promhttp.HandlerFor(rt.metrics.GetRegistry(), promhttp.HandlerOpts{})))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	app.Get("/version", func(c *fiber.Ctx) error {
		return c.JSON(version.GetVersion())
	})

	externalPath := rt.httpConf.ExternalContextPath
	if externalPath == "" {
		externalPath = "/api"
	}
	internalPath := rt.httpConf.InternalContextPath
	if internalPath == "" {
		internalPath = "/internal"
	}

	// mini-app surface
	external := app.Group(externalPath)
	{
		rt.funnelRouter(external)
		rt.trialRouter(external)
	}

	// service-to-service and operator surface
	internal := app.Group(internalPath)
	{
		rt.internalRouter(internal)
	}

	// must come after every route registration
	app.Use(func(c *fiber.Ctx) error {
		c.Status(fiber.StatusNotFound)
		return httpx.WithRepErrMsg(c, httpx.NotFound.Code, httpx.NotFound.Msg, c.Path())
	})

	return app
}
