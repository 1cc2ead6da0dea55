// Copyright 2023 Versity Software
// This file is licensed under the Apache License, Version 2.0
// (the "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package authapi

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/accessgate/accessgate/auth"
	"github.com/accessgate/accessgate/authapi/controllers"
	"github.com/accessgate/accessgate/authapi/middlewares"
)

// ServerConfig contains configuration for the decision API server
type ServerConfig struct {
	Address        string
	RequestTimeout time.Duration
}

// DefaultServerConfig returns the default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:        ":7070",
		RequestTimeout: 30 * time.Second,
	}
}

// Server hosts the access decision API: a health endpoint, the zero-trust
// middleware guarding every other route, and the authenticated
// introspection surface.
type Server struct {
	config     *ServerConfig
	app        *fiber.App
	middleware *middlewares.ZeroTrustMiddleware
	logger     *logrus.Logger
}

// NewServer creates the API server around an initialized middleware
func NewServer(config *ServerConfig, mw *middlewares.ZeroTrustMiddleware, auditLogger auth.SecurityAuditLogger, sessions auth.SessionStore, logger *logrus.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           config.RequestTimeout,
		WriteTimeout:          config.RequestTimeout,
		DisableStartupMessage: true,
	})

	srv := &Server{
		config:     config,
		app:        app,
		middleware: mw,
		logger:     logger,
	}
	srv.registerRoutes(auditLogger, sessions)
	return srv
}

// App returns the underlying fiber app, e.g. for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve starts the listener and blocks until the context is canceled or
// the listener fails
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.config.Address)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down decision API server")
		return s.app.Shutdown()
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes(auditLogger auth.SecurityAuditLogger, sessions auth.SessionStore) {
	s.app.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{"status": "ok"})
	})

	s.app.Use(s.middleware.Handler())

	introspect := controllers.NewIntrospectController(auditLogger, s.middleware.TrustCache(), sessions)
	v1 := s.app.Group("/api/v1")
	v1.Get("/whoami", introspect.WhoAmI)
	v1.Get("/audit/events", introspect.AuditEvents)
	v1.Post("/logout", introspect.Logout)
}
