// config.go - PoWeb client configuration.
// Copyright (C) 2021  The Awala PoWeb Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package config implements the configuration for the PoWeb command line
// tools.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	poweb "github.com/relaycorp/awala-poweb-go"
	"github.com/relaycorp/awala-poweb-go/core/log"
)

const defaultLogLevel = "NOTICE"

// Gateway describes the gateway to talk to.
type Gateway struct {
	// Host is the gateway host.  If omitted, the loopback address is used
	// and TLS is disabled (a local gateway).
	Host string

	// Port is the gateway port.  If omitted, the binding default for the
	// gateway kind is used.
	Port uint16

	// UseTLS overrides the TLS default for the gateway kind.
	UseTLS *bool
}

func (gCfg *Gateway) endpoint() (poweb.Endpoint, error) {
	if gCfg.Host == "" {
		if gCfg.UseTLS != nil && *gCfg.UseTLS {
			return poweb.Endpoint{}, fmt.Errorf("config: Gateway: TLS requires a Host")
		}
		return poweb.LocalEndpoint(gCfg.Port), nil
	}
	useTLS := true
	if gCfg.UseTLS != nil {
		useTLS = *gCfg.UseTLS
	}
	port := gCfg.Port
	if port == 0 {
		if useTLS {
			port = poweb.DefaultRemotePort
		} else {
			port = poweb.DefaultLocalPort
		}
	}
	return poweb.NewEndpoint(gCfg.Host, port, useTLS)
}

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch lvl {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	case "":
		lvl = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl
	return nil
}

// Config is the top level configuration.
type Config struct {
	Gateway Gateway
	Logging *Logging

	// StreamingMode selects the parcel collection streaming mode, either
	// "keep-alive" or "close-upon-completion".
	StreamingMode string
}

// FixupAndValidate applies defaults and validates the configuration.
func (cfg *Config) FixupAndValidate() error {
	if cfg.Logging == nil {
		cfg.Logging = &Logging{Level: defaultLogLevel}
	}
	if err := cfg.Logging.validate(); err != nil {
		return err
	}
	switch cfg.StreamingMode {
	case "", "keep-alive", "close-upon-completion":
	default:
		return fmt.Errorf("config: StreamingMode '%v' is invalid", cfg.StreamingMode)
	}
	if _, err := cfg.Gateway.endpoint(); err != nil {
		return err
	}
	return nil
}

// Endpoint returns the gateway endpoint described by the configuration.
// FixupAndValidate must have been called.
func (cfg *Config) Endpoint() poweb.Endpoint {
	e, _ := cfg.Gateway.endpoint()
	return e
}

// Mode returns the configured streaming mode.
func (cfg *Config) Mode() poweb.StreamingMode {
	if cfg.StreamingMode == "close-upon-completion" {
		return poweb.StreamingModeCloseUponCompletion
	}
	return poweb.StreamingModeKeepAlive
}

// LogBackend constructs the logging backend described by the configuration.
func (cfg *Config) LogBackend() (*log.Backend, error) {
	return log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
}

// Load parses and validates the provided buffer b as a config body.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
