// transport.go - Shared HTTP and WebSocket transport.
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
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	httpTimeout     = 30 * time.Second
	wsDialTimeout   = 30 * time.Second
	maxResponseSize = 1 << 22 // 4 MiB
)

// transport owns the single underlying HTTP client and WebSocket dialer of
// a Client.  Release is idempotent.
type transport struct {
	endpoint Endpoint

	httpClient *http.Client
	wsDialer   *websocket.Dialer

	closeOnce sync.Once
}

func newTransport(endpoint Endpoint, tlsCfg *tls.Config) *transport {
	t := &transport{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: httpTimeout,
			// Redirects are a binding violation, surface them verbatim.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
			Transport: &http.Transport{
				TLSClientConfig: tlsCfg,
			},
		},
		wsDialer: &websocket.Dialer{
			HandshakeTimeout: wsDialTimeout,
			TLSClientConfig:  tlsCfg,
		},
	}
	return t
}

// close releases the transport.  It may be called any number of times.
func (t *transport) close() {
	t.closeOnce.Do(func() {
		t.httpClient.CloseIdleConnections()
	})
}

// httpResult is the outcome of a unary POST, after connection-level error
// mapping but before endpoint-specific status handling.
type httpResult struct {
	status      int
	contentType string
	body        []byte
}

// post issues a POST to the given path below the endpoint's base HTTP URL.
// Connection-level failures are mapped per the binding; HTTP-level statuses
// are left for the caller to interpret.
func (t *transport) post(ctx context.Context, path, contentType string, body []byte, authorization string) (*httpResult, error) {
	url := t.endpoint.HTTPURL() + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, mapConnError(err, url)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &ServerConnectionError{Message: "Connection to the server was interrupted", Err: err}
	}
	return &httpResult{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        respBody,
	}, nil
}

// wsConnect opens a WebSocket below the endpoint's base WebSocket URL.
func (t *transport) wsConnect(path string, header http.Header) (*websocket.Conn, error) {
	url := t.endpoint.WebSocketURL() + path
	ws, resp, err := t.wsDialer.Dial(url, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		if errors.Is(err, websocket.ErrBadHandshake) {
			return nil, &ServerConnectionError{Message: "Failed to upgrade the connection to WebSocket", Err: err}
		}
		return nil, mapConnError(err, url)
	}
	if resp != nil {
		resp.Body.Close()
	}
	return ws, nil
}

// checkStatus applies the status mapping shared by every unary endpoint.
// Endpoint-specific statuses (e.g. 422 on parcel delivery) must be handled
// by the caller first.
func checkStatus(result *httpResult) error {
	switch {
	case 300 <= result.status && result.status < 400:
		return newServerBindingError("Unexpected redirect (code: %d)", result.status)
	case 400 <= result.status && result.status < 500:
		return &ClientBindingError{StatusCode: result.status}
	case 500 <= result.status:
		return newServerConnectionError("The server was unable to fulfil the request (code: %d)", result.status)
	}
	return nil
}

func mapConnError(err error, url string) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &ServerConnectionError{Message: "Failed to resolve DNS", Err: err}
	}
	return &ServerConnectionError{Message: "Failed to connect to " + url, Err: err}
}
