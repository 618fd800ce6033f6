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

// Package config loads gateway process configuration from the environment,
// per the variables table in the specification (§6).
package config

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Config is the immutable process configuration, populated once at startup.
type Config struct {
	JWTSecret   string
	Host        string
	Port        int
	NATSURL     string
	TLSCertPath string
	TLSKeyPath  string
}

// WebSocketPort is the WebSocket listener port, always Port+1 (§6).
func (c Config) WebSocketPort() int { return c.Port + 1 }

// SelfSigned reports whether TLS material must be generated on the fly.
func (c Config) SelfSigned() bool { return c.TLSCertPath == "" || c.TLSKeyPath == "" }

// Load reads environment variables into a Config. JWT_SECRET is required;
// every other variable has a default per §6.
func Load() (Config, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}

	cfg := Config{
		JWTSecret:   secret,
		Host:        getenvDefault("GATEWAY_HOST", "0.0.0.0"),
		NATSURL:     getenvDefault("NATS_URL", "localhost:4222"),
		TLSCertPath: os.Getenv("TLS_CERT_PATH"),
		TLSKeyPath:  os.Getenv("TLS_KEY_PATH"),
	}

	port, err := strconv.Atoi(getenvDefault("GATEWAY_PORT", "4433"))
	if err != nil {
		return Config{}, errors.Wrap(err, "parsing GATEWAY_PORT")
	}
	cfg.Port = port

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
