// poweb.go - PoWeb client.
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

// Package poweb implements the client side of the Parcel over Web (PoWeb)
// binding: node registration, parcel delivery and streaming parcel
// collection against a PoWeb gateway.
package poweb

import (
	"crypto/tls"
	"fmt"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/relaycorp/awala-poweb-go/core/log"
)

// ClientConfig is a PoWeb client configuration.
type ClientConfig struct {
	// Endpoint describes the gateway the client talks to.
	Endpoint Endpoint

	// LogBackend is the logging backend to use for client logging.
	LogBackend *log.Backend

	// TLSConfig is the optional TLS configuration used when the endpoint
	// has TLS enabled.  Mostly useful to pin the gateway certificate in
	// tests.
	TLSConfig *tls.Config

	// OnStatusFn is the optional callback invoked when the status of a
	// parcel collection session changes.  It is called with nil when a
	// session's handshake completes, and with the error when a collection
	// terminates with one.  Normal terminations, cancellations and
	// keep-alive reconnections are not reported.  The callback must not
	// block.
	OnStatusFn func(error)
}

func (cfg *ClientConfig) validate() error {
	if cfg.Endpoint.Host() == "" {
		return fmt.Errorf("poweb: no Endpoint provided")
	}
	if cfg.LogBackend == nil {
		return fmt.Errorf("poweb: no LogBackend provided")
	}
	return nil
}

// Client is a PoWeb client instance.  It owns its transport exclusively;
// Shutdown releases it.
type Client struct {
	cfg *ClientConfig
	log *logging.Logger

	transport *transport

	collectionsLock sync.Mutex
	collections     map[*Collection]struct{}

	haltedCh chan interface{}
	haltOnce sync.Once
}

// New creates a new Client with the provided configuration.
func New(cfg *ClientConfig) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := new(Client)
	c.cfg = cfg
	c.log = cfg.LogBackend.GetLogger("poweb/client:" + cfg.Endpoint.String())
	c.transport = newTransport(cfg.Endpoint, cfg.TLSConfig)
	c.collections = make(map[*Collection]struct{})
	c.haltedCh = make(chan interface{})

	c.log.Debugf("Gateway endpoint is: %v (TLS: %v)", cfg.Endpoint, cfg.Endpoint.UseTLS())

	return c, nil
}

// NewLocalClient creates a Client for a gateway on loopback, without TLS,
// on the default local port.
func NewLocalClient(logBackend *log.Backend) (*Client, error) {
	return New(&ClientConfig{
		Endpoint:   LocalEndpoint(0),
		LogBackend: logBackend,
	})
}

// NewRemoteClient creates a Client for a remote gateway, with TLS, on the
// default remote port.
func NewRemoteClient(host string, logBackend *log.Backend) (*Client, error) {
	return New(&ClientConfig{
		Endpoint:   RemoteEndpoint(host, 0),
		LogBackend: logBackend,
	})
}

// Shutdown cleanly shuts down a given Client instance, terminating any
// outstanding collection sessions and releasing the transport.  It is
// idempotent.
func (c *Client) Shutdown() {
	c.haltOnce.Do(func() { c.halt() })
}

// Wait waits till the Client is terminated for any reason.
func (c *Client) Wait() {
	<-c.haltedCh
}

func (c *Client) halt() {
	c.log.Debug("Starting graceful shutdown.")

	c.collectionsLock.Lock()
	open := make([]*Collection, 0, len(c.collections))
	for col := range c.collections {
		open = append(open, col)
	}
	c.collectionsLock.Unlock()
	for _, col := range open {
		col.Close()
	}

	c.transport.close()

	c.log.Debug("Shutdown complete.")
	close(c.haltedCh)
}

func (c *Client) isShutdown() bool {
	select {
	case <-c.haltedCh:
		return true
	default:
		return false
	}
}

func (c *Client) registerCollection(col *Collection) {
	c.collectionsLock.Lock()
	c.collections[col] = struct{}{}
	c.collectionsLock.Unlock()
}

func (c *Client) unregisterCollection(col *Collection) {
	c.collectionsLock.Lock()
	delete(c.collections, col)
	c.collectionsLock.Unlock()
}
