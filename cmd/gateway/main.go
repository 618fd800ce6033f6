// Copyright 2026 The MottoMesh Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command gateway runs the MottoMesh transport-agnostic pub/sub and
// request-reply gateway (§4.8): it terminates WebTransport and
// WebSocket connections, authenticates each session against JWT_SECRET,
// and bridges publish/subscribe/request traffic to the configured NATS
// broker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bowber/mottomesh/internal/auth"
	"github.com/bowber/mottomesh/internal/bus"
	"github.com/bowber/mottomesh/internal/config"
	"github.com/bowber/mottomesh/internal/gateway"
	"github.com/bowber/mottomesh/internal/glog"
)

// shutdownTimeout bounds how long graceful shutdown waits for live
// sessions to drain before the process exits anyway.
const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := glog.NewConsole(glog.LevelNotice)

	tlsConf, err := cfg.LoadTLSConfig()
	if err != nil {
		return err
	}

	busClient, err := bus.Connect(cfg.NATSURL)
	if err != nil {
		return err
	}
	defer busClient.Close()

	verifier := auth.NewVerifier(cfg.JWTSecret)

	gw := gateway.New(cfg, verifier, busClient, log, tlsConf)
	if err := gw.Serve(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Noticef("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return gw.Shutdown(shutdownCtx)
}
