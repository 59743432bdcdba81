// helpers_test.go - Shared test helpers.
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
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycorp/awala-poweb-go/commands"
	"github.com/relaycorp/awala-poweb-go/core/log"
)

func testLogBackend(t *testing.T) *log.Backend {
	b, err := log.New("", "DEBUG", true)
	require.NoError(t, err)
	return b
}

func testCertificate(t *testing.T) (*x509.Certificate, ed25519.PrivateKey) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test node"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, priv
}

func testSigner(t *testing.T) (Signer, *x509.Certificate, ed25519.PrivateKey) {
	cert, key := testCertificate(t)
	s, err := NewED25519Signer(cert, key)
	require.NoError(t, err)
	return s, cert, key
}

// signedPayload reproduces the byte string an ED25519 signer signs, so
// tests can verify detached signatures.
func signedPayload(payload []byte, purpose SignaturePurpose) []byte {
	signed := make([]byte, 0, len(purpose)+1+len(payload))
	signed = append(signed, purpose...)
	signed = append(signed, 0x00)
	signed = append(signed, payload...)
	return signed
}

func testClientFor(t *testing.T, srv *httptest.Server) *Client {
	addr := srv.Listener.Addr().(*net.TCPAddr)
	endpoint, err := NewEndpoint("127.0.0.1", uint16(addr.Port), false)
	require.NoError(t, err)

	c, err := New(&ClientConfig{
		Endpoint:   endpoint,
		LogBackend: testLogBackend(t),
	})
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)
	return c
}

// sessionHandler scripts the server side of one collection session.
type sessionHandler func(t *testing.T, conn *websocket.Conn)

// testGateway is an in-process PoWeb gateway serving the parcel collection
// endpoint.  Each accepted connection is driven by the next scripted
// session handler.
type testGateway struct {
	srv *httptest.Server

	mu       sync.Mutex
	sessions int
	modes    []string
}

func startGateway(t *testing.T, handlers ...sessionHandler) *testGateway {
	g := new(testGateway)
	upgrader := websocket.Upgrader{}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/parcel-collection", r.URL.Path)

		g.mu.Lock()
		idx := g.sessions
		g.sessions++
		g.modes = append(g.modes, r.Header.Get(StreamingModeHeader))
		g.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		if idx < len(handlers) {
			handlers[idx](t, conn)
		}
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *testGateway) client(t *testing.T) *Client {
	return testClientFor(t, g.srv)
}

func (g *testGateway) sessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessions
}

func (g *testGateway) mode(i int) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.modes[i]
}

func sendChallenge(t *testing.T, conn *websocket.Conn, nonce []byte) {
	raw, err := (&commands.HandshakeChallenge{Nonce: nonce}).Marshal()
	assert.NoError(t, err)
	assert.NoError(t, conn.WriteMessage(websocket.BinaryMessage, raw))
}

func readHandshakeResponse(t *testing.T, conn *websocket.Conn) *commands.HandshakeResponse {
	msgType, raw, err := conn.ReadMessage()
	if !assert.NoError(t, err) {
		return nil
	}
	assert.Equal(t, websocket.BinaryMessage, msgType)
	response := new(commands.HandshakeResponse)
	assert.NoError(t, response.Unmarshal(raw))
	return response
}

func sendParcelDelivery(t *testing.T, conn *websocket.Conn, deliveryID string, parcel []byte) {
	raw, err := (&commands.ParcelDelivery{DeliveryID: deliveryID, Parcel: parcel}).Marshal()
	assert.NoError(t, err)
	assert.NoError(t, conn.WriteMessage(websocket.BinaryMessage, raw))
}

func sendClose(t *testing.T, conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	assert.NoError(t, err)
}

// readUntilClose consumes inbound frames until the peer's close frame (or
// an abrupt end of stream), returning the text frames seen and the close
// error, if any.
func readUntilClose(conn *websocket.Conn) ([]string, *websocket.CloseError) {
	var texts []string
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return texts, closeErr
			}
			return texts, nil
		}
		if msgType == websocket.TextMessage {
			texts = append(texts, string(raw))
		}
	}
}
