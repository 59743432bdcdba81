// endpoint.go - Gateway endpoint configuration.
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

package poweb

import (
	"fmt"
	"net"
	"strconv"
)

const (
	// DefaultLocalPort is the port a local gateway listens on by default.
	DefaultLocalPort = 276

	// DefaultRemotePort is the port a remote gateway listens on by default.
	DefaultRemotePort = 443

	apiVersionPath = "/v1"
)

// Endpoint is the immutable description of a PoWeb server: where it listens
// and whether the connection uses TLS.
type Endpoint struct {
	host   string
	port   uint16
	useTLS bool
}

// LocalEndpoint returns the Endpoint of a local gateway: loopback, no TLS.
func LocalEndpoint(port uint16) Endpoint {
	if port == 0 {
		port = DefaultLocalPort
	}
	return Endpoint{host: "127.0.0.1", port: port, useTLS: false}
}

// RemoteEndpoint returns the Endpoint of a remote gateway: the given host,
// TLS enabled.
func RemoteEndpoint(host string, port uint16) Endpoint {
	if port == 0 {
		port = DefaultRemotePort
	}
	return Endpoint{host: host, port: port, useTLS: true}
}

// NewEndpoint returns an Endpoint with every knob set explicitly.
func NewEndpoint(host string, port uint16, useTLS bool) (Endpoint, error) {
	if host == "" {
		return Endpoint{}, fmt.Errorf("poweb: endpoint host must not be empty")
	}
	if port == 0 {
		return Endpoint{}, fmt.Errorf("poweb: endpoint port must not be zero")
	}
	return Endpoint{host: host, port: port, useTLS: useTLS}, nil
}

// Host returns the endpoint host.
func (e Endpoint) Host() string { return e.host }

// Port returns the endpoint port.
func (e Endpoint) Port() uint16 { return e.port }

// UseTLS returns true if connections to the endpoint use TLS.
func (e Endpoint) UseTLS() bool { return e.useTLS }

func (e Endpoint) hostPort() string {
	return net.JoinHostPort(e.host, strconv.Itoa(int(e.port)))
}

// HTTPURL returns the base HTTP URL of the endpoint, including the API
// version prefix.
func (e Endpoint) HTTPURL() string {
	scheme := "http"
	if e.useTLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, e.hostPort(), apiVersionPath)
}

// WebSocketURL returns the base WebSocket URL of the endpoint, including
// the API version prefix.
func (e Endpoint) WebSocketURL() string {
	scheme := "ws"
	if e.useTLS {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s%s", scheme, e.hostPort(), apiVersionPath)
}

// String implements the Stringer interface.
func (e Endpoint) String() string {
	return e.hostPort()
}
