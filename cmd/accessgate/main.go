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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/accessgate/accessgate/auth"
	"github.com/accessgate/accessgate/authapi"
	"github.com/accessgate/accessgate/authapi/middlewares"
	"github.com/accessgate/accessgate/authlog"
	"github.com/accessgate/accessgate/metrics"
)

var (
	// Server settings
	address        string
	requestTimeout time.Duration

	// Policy settings
	profile       string
	excludedPaths string

	// Token verification settings
	jwtSecret   string
	jwtIssuer   string
	jwtAudience string
	jwtLeeway   time.Duration

	// Session settings
	sessionTTL time.Duration

	// Threat feed settings
	threatFeedFile string

	// Decision sink settings
	natsURL     string
	natsSubject string
	kafkaList   string
	kafkaTopic  string

	// Metrics settings
	metricsService   string
	metricsAddress   string
	metricsNamespace string

	// Logging settings
	debug   bool
	logJSON bool
)

func main() {
	app := &cli.App{
		Name:  "accessgate",
		Usage: "adaptive risk-based access decision engine",
		Description: `accessgate evaluates every incoming request against location, device,
behavioral, temporal, and network risk signals and decides whether to
allow, challenge, or block it. Verified requests carry an authenticated
principal with a risk score into the protected routes.

Configuration can be provided via command-line flags or environment
variables.`,
		Action: runGateway,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "address",
				Usage:       "listen address for the decision API",
				EnvVars:     []string{"AGW_ADDRESS"},
				Value:       ":7070",
				Destination: &address,
				Aliases:     []string{"a"},
			},
			&cli.DurationFlag{
				Name:        "request-timeout",
				Usage:       "read and write timeout for API requests",
				EnvVars:     []string{"AGW_REQUEST_TIMEOUT"},
				Value:       30 * time.Second,
				Destination: &requestTimeout,
			},
			&cli.StringFlag{
				Name:        "profile",
				Usage:       "policy profile: standard, strict, or admin",
				EnvVars:     []string{"AGW_PROFILE"},
				Value:       "standard",
				Destination: &profile,
				Aliases:     []string{"p"},
			},
			&cli.StringFlag{
				Name:        "excluded-paths",
				Usage:       "comma-separated paths exempt from the decision pipeline (supports trailing '*')",
				EnvVars:     []string{"AGW_EXCLUDED_PATHS"},
				Destination: &excludedPaths,
			},
			&cli.StringFlag{
				Name:        "jwt-secret",
				Usage:       "HMAC secret for access token verification",
				EnvVars:     []string{"AGW_JWT_SECRET"},
				Required:    true,
				Destination: &jwtSecret,
			},
			&cli.StringFlag{
				Name:        "jwt-issuer",
				Usage:       "expected token issuer (optional)",
				EnvVars:     []string{"AGW_JWT_ISSUER"},
				Destination: &jwtIssuer,
			},
			&cli.StringFlag{
				Name:        "jwt-audience",
				Usage:       "expected token audience (optional)",
				EnvVars:     []string{"AGW_JWT_AUDIENCE"},
				Destination: &jwtAudience,
			},
			&cli.DurationFlag{
				Name:        "jwt-leeway",
				Usage:       "clock skew tolerance for token time claims",
				EnvVars:     []string{"AGW_JWT_LEEWAY"},
				Value:       30 * time.Second,
				Destination: &jwtLeeway,
			},
			&cli.DurationFlag{
				Name:        "session-ttl",
				Usage:       "lifetime of sessions in the built-in session store",
				EnvVars:     []string{"AGW_SESSION_TTL"},
				Value:       24 * time.Hour,
				Destination: &sessionTTL,
			},
			&cli.StringFlag{
				Name:        "threat-feed-file",
				Usage:       "newline-delimited file of malicious IPs and CIDRs, hot-reloaded on change",
				EnvVars:     []string{"AGW_THREAT_FEED_FILE"},
				Destination: &threatFeedFile,
			},
			&cli.StringFlag{
				Name:        "nats-url",
				Usage:       "NATS server URL for decision event publishing (optional)",
				EnvVars:     []string{"AGW_NATS_URL"},
				Destination: &natsURL,
			},
			&cli.StringFlag{
				Name:        "nats-subject",
				Usage:       "NATS subject for decision events",
				EnvVars:     []string{"AGW_NATS_SUBJECT"},
				Destination: &natsSubject,
			},
			&cli.StringFlag{
				Name:        "kafka-brokers",
				Usage:       "comma-separated Kafka brokers for decision event publishing (optional)",
				EnvVars:     []string{"AGW_KAFKA_BROKERS"},
				Destination: &kafkaList,
			},
			&cli.StringFlag{
				Name:        "kafka-topic",
				Usage:       "Kafka topic for decision events",
				EnvVars:     []string{"AGW_KAFKA_TOPIC"},
				Destination: &kafkaTopic,
			},
			&cli.StringFlag{
				Name:        "metrics-service",
				Usage:       "metrics service: statsd or dogstatsd",
				EnvVars:     []string{"AGW_METRICS_SERVICE"},
				Destination: &metricsService,
			},
			&cli.StringFlag{
				Name:        "metrics-address",
				Usage:       "metrics service address",
				EnvVars:     []string{"AGW_METRICS_ADDRESS"},
				Destination: &metricsAddress,
			},
			&cli.StringFlag{
				Name:        "metrics-namespace",
				Usage:       "prefix for emitted metric names",
				EnvVars:     []string{"AGW_METRICS_NAMESPACE"},
				Destination: &metricsNamespace,
			},
			&cli.BoolFlag{
				Name:        "debug",
				Usage:       "enable debug logging",
				EnvVars:     []string{"AGW_DEBUG"},
				Destination: &debug,
			},
			&cli.BoolFlag{
				Name:        "log-json",
				Usage:       "emit logs as JSON",
				EnvVars:     []string{"AGW_LOG_JSON"},
				Destination: &logJSON,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runGateway(_ *cli.Context) error {
	logger := logrus.New()
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	if logJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	conf, err := auth.ProfileConfig(profile)
	if err != nil {
		return err
	}
	if excludedPaths != "" {
		conf.ExcludedPaths = splitList(excludedPaths)
	}

	verifier, err := auth.NewJWTVerifier(auth.JWTVerifierConfig{
		Secret:   []byte(jwtSecret),
		Issuer:   jwtIssuer,
		Audience: jwtAudience,
		Leeway:   jwtLeeway,
	})
	if err != nil {
		return fmt.Errorf("init token verifier: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var threatFeed auth.ThreatFeed = auth.NoopThreatFeed{}
	if threatFeedFile != "" {
		feed, err := auth.NewFileThreatFeed(threatFeedFile, logger)
		if err != nil {
			return fmt.Errorf("load threat feed: %w", err)
		}
		if err := feed.StartWatching(ctx); err != nil {
			return fmt.Errorf("watch threat feed: %w", err)
		}
		defer feed.StopWatching()
		threatFeed = feed
	}

	sink, err := buildSink(logger)
	if err != nil {
		return err
	}
	defer sink.Close()

	metricsManager, err := metrics.NewManager(metrics.Config{
		Service:   metricsService,
		Address:   metricsAddress,
		Namespace: metricsNamespace,
	})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer metricsManager.Close()

	auditLogger := auth.NewSecurityAuditLogger(nil, logger)
	defer auditLogger.Close()

	sessions := auth.NewInMemorySessionStore(sessionTTL)

	mw, err := middlewares.NewZeroTrustMiddleware(&middlewares.ZeroTrustConfig{
		Config:      conf,
		Verifier:    verifier,
		Sessions:    sessions,
		ThreatFeed:  threatFeed,
		AuditLogger: auditLogger,
		Sink:        sink,
		Logger:      logger,
		Metrics:     metricsManager,
	})
	if err != nil {
		return fmt.Errorf("init middleware: %w", err)
	}

	trustCache := mw.TrustCache()
	trustCache.Start()
	defer trustCache.Stop()

	server := authapi.NewServer(&authapi.ServerConfig{
		Address:        address,
		RequestTimeout: requestTimeout,
	}, mw, auditLogger, sessions, logger)

	logger.WithFields(logrus.Fields{
		"address": address,
		"profile": profile,
	}).Info("starting access decision engine")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Serve(groupCtx)
	})
	return group.Wait()
}

// buildSink assembles the decision event sink chain from the configured
// destinations. The operational log sink is always present.
func buildSink(logger *logrus.Logger) (authlog.Sink, error) {
	sinks := []authlog.Sink{authlog.NewLogrusSink(logger)}

	if natsURL != "" {
		natsSink, err := authlog.NewNATSSink(natsURL, natsSubject)
		if err != nil {
			return nil, fmt.Errorf("connect NATS sink: %w", err)
		}
		sinks = append(sinks, natsSink)
	}
	if kafkaList != "" {
		sinks = append(sinks, authlog.NewKafkaSink(splitList(kafkaList), kafkaTopic))
	}

	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return authlog.NewMultiSink(sinks...), nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
