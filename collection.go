// collection.go - Streaming parcel collection.
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
	"context"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gopkg.in/op/go-logging.v1"

	"github.com/relaycorp/awala-poweb-go/commands"
	"github.com/relaycorp/awala-poweb-go/core/worker"
)

const (
	wsPingInterval     = 5 * time.Second
	wsWriteTimeout     = 10 * time.Second
	keepAliveReadLimit = 30 * time.Second

	ackQueueDepth = 16
)

// Reconnection delays in keep-alive mode, per cause.
var (
	reconnectDelayDisconnect = 3 * time.Second
	reconnectDelayTimeout    = 500 * time.Millisecond
)

// StreamingMode selects how long the server keeps the parcel collection
// socket open.
type StreamingMode int

const (
	// StreamingModeKeepAlive keeps the connection open indefinitely; new
	// parcels are pushed as they arrive.
	StreamingModeKeepAlive StreamingMode = iota

	// StreamingModeCloseUponCompletion has the server send the currently
	// queued parcels and then close the connection.
	StreamingModeCloseUponCompletion
)

// String returns the on-the-wire header value of the mode.
func (m StreamingMode) String() string {
	if m == StreamingModeCloseUponCompletion {
		return "close-upon-completion"
	}
	return "keep-alive"
}

// ParcelCollection is a single parcel handed to the caller by the
// collection engine.
type ParcelCollection struct {
	// Parcel is the serialised parcel.
	Parcel []byte

	// TrustedCertificates are the certificates of the nonce signers the
	// collection call was made with, in call order.  Any parcel delivered
	// on this session is bound to one of them.
	TrustedCertificates []*x509.Certificate

	deliveryID string
	col        *Collection
	ackOnce    sync.Once
}

// Ack acknowledges receipt of the parcel, permitting the server to delete
// its copy.  At most one acknowledgement is sent no matter how often Ack is
// called.  Ack returns ErrSessionClosed if the collection session
// terminated before the acknowledgement could be handed to the engine.
func (p *ParcelCollection) Ack() error {
	var closed bool
	p.ackOnce.Do(func() {
		// doneCh takes priority: once the session has terminated the
		// acknowledgement can no longer reach the server.
		select {
		case <-p.col.doneCh:
			closed = true
			return
		default:
		}
		select {
		case p.col.ackCh <- p.deliveryID:
		case <-p.col.doneCh:
			closed = true
		}
	})
	if closed {
		return ErrSessionClosed
	}
	return nil
}

// Collection is a parcel collection session: a lazy sequence of
// ParcelCollection values produced by the engine.  Each element must be
// consumed (and optionally acknowledged) before the next one is observed.
type Collection struct {
	worker.Worker

	c   *Client
	log *logging.Logger

	signers      []Signer
	trustedCerts []*x509.Certificate
	mode         StreamingMode

	parcelCh chan *ParcelCollection
	ackCh    chan string
	doneCh   chan interface{}

	errLock sync.Mutex
	err     error

	closeOnce sync.Once
}

// CollectParcels starts collecting parcels addressed to the nodes
// represented by the given nonce signers.  No element is produced before
// the handshake completes.  The returned Collection must be closed by the
// caller unless it is consumed to completion.
func (c *Client) CollectParcels(signers []Signer, mode StreamingMode) (*Collection, error) {
	if c.isShutdown() {
		return nil, ErrShutdown
	}
	if len(signers) == 0 {
		return nil, &NonceSignerError{Message: "At least one nonce signer must be specified"}
	}

	trustedCerts := make([]*x509.Certificate, 0, len(signers))
	for _, s := range signers {
		trustedCerts = append(trustedCerts, s.Certificate())
	}

	col := &Collection{
		c:            c,
		log:          c.cfg.LogBackend.GetLogger("poweb/collector:" + c.cfg.Endpoint.String()),
		signers:      signers,
		trustedCerts: trustedCerts,
		mode:         mode,
		parcelCh:     make(chan *ParcelCollection),
		ackCh:        make(chan string, ackQueueDepth),
		doneCh:       make(chan interface{}),
	}
	c.registerCollection(col)
	col.Go(col.worker)
	return col, nil
}

// Next blocks until the engine produces the next parcel, the session
// terminates, or ctx is done.  It returns (nil, nil) when the session
// terminated normally, and (nil, err) when it terminated with an error.
func (col *Collection) Next(ctx context.Context) (*ParcelCollection, error) {
	select {
	case pc, ok := <-col.parcelCh:
		if !ok {
			return nil, col.Err()
		}
		return pc, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err returns the error the session terminated with, if any.  It must only
// be consulted after Next has returned (nil, ...).
func (col *Collection) Err() error {
	col.errLock.Lock()
	defer col.errLock.Unlock()
	return col.err
}

// Close cancels the session: the engine closes the WebSocket with a normal
// close code and stops producing elements.  Close is idempotent and blocks
// until the engine has terminated.
func (col *Collection) Close() {
	col.closeOnce.Do(col.Halt)
}

func (col *Collection) setErr(err error) {
	col.errLock.Lock()
	col.err = err
	col.errLock.Unlock()
}

// worker is the outer control loop: it runs sessions and feeds the
// retryable termination causes back into a reconnect, in keep-alive mode
// only.
func (col *Collection) worker() {
	defer func() {
		col.c.unregisterCollection(col)
		close(col.doneCh)
		close(col.parcelCh)
	}()

	for {
		retryDelay, err := col.runSession()
		if err != nil {
			col.log.Debugf("Session terminated: %v", err)
			col.notifyStatus(err)
			col.setErr(err)
			return
		}
		if retryDelay == 0 {
			col.log.Debug("Session terminated normally.")
			return
		}

		collectionReconnects.Inc()
		col.log.Debugf("Reconnecting in %v.", retryDelay)
		select {
		case <-time.After(retryDelay):
		case <-col.HaltCh():
			return
		}
	}
}

// inboundFrame is one WebSocket frame (or the read error that ended the
// stream), as produced by the reader go routine.
type inboundFrame struct {
	msgType int
	data    []byte
	err     error
}

// runSession runs one connection worth of the session state machine.  A
// non-zero retryDelay requests a reconnect after that delay; both return
// values zero means normal termination.
func (col *Collection) runSession() (retryDelay time.Duration, err error) {
	header := http.Header{}
	header.Set(StreamingModeHeader, col.mode.String())

	ws, err := col.c.transport.wsConnect(parcelCollectionPath, header)
	if err != nil {
		// Failures to establish the connection are never retried.
		return 0, err
	}
	defer ws.Close()
	collectionSessions.Inc()

	// Unblock the handshake read if the consumer cancels mid-handshake.
	handshakeDoneCh := make(chan interface{})
	var handshakeOnce sync.Once
	handshakeDone := func() { handshakeOnce.Do(func() { close(handshakeDoneCh) }) }
	defer handshakeDone()
	go func() {
		select {
		case <-col.HaltCh():
			col.closeWS(ws, websocket.CloseNormalClosure, "")
			ws.Close()
		case <-handshakeDoneCh:
		}
	}()

	// OPENING: wait for the handshake challenge.
	msgType, raw, err := ws.ReadMessage()
	if err != nil {
		if col.isHalted() {
			return 0, nil
		}
		return 0, newServerConnectionError("Server closed the connection during the handshake")
	}
	challenge := new(commands.HandshakeChallenge)
	if msgType != websocket.BinaryMessage || challenge.Unmarshal(raw) != nil {
		col.closeWS(ws, websocket.ClosePolicyViolation, "")
		return 0, newServerBindingError("Server sent an invalid handshake challenge")
	}

	// SIGNING: one detached signature per signer, in call order.
	response := &commands.HandshakeResponse{
		NonceSignatures: make([][]byte, 0, len(col.signers)),
	}
	for _, s := range col.signers {
		var sig []byte
		if sig, err = s.Sign(challenge.Nonce, SignatureNonce); err != nil {
			col.closeWS(ws, websocket.CloseNormalClosure, "")
			return 0, &NonceSignerError{Message: "Failed to sign the handshake nonce", Err: err}
		}
		response.NonceSignatures = append(response.NonceSignatures, sig)
	}
	raw, err = response.Marshal()
	if err != nil {
		col.closeWS(ws, websocket.CloseNormalClosure, "")
		return 0, err
	}
	if err = ws.WriteMessage(websocket.BinaryMessage, raw); err != nil {
		if col.isHalted() {
			return 0, nil
		}
		return 0, &ServerConnectionError{Message: "Connection to the server was interrupted", Err: err}
	}
	handshakeDone()
	col.log.Debug("Handshake completed.")
	col.notifyStatus(nil)

	// In keep-alive mode a silent server is a retryable condition; arm the
	// read deadline and keep it extended while traffic flows.  In
	// close-upon-completion mode timeouts are the caller's responsibility.
	keepAlive := col.mode == StreamingModeKeepAlive
	if keepAlive {
		ws.SetReadDeadline(time.Now().Add(keepAliveReadLimit))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(keepAliveReadLimit))
		})
	}

	// STREAMING: the reader go routine owns all reads, this go routine owns
	// all writes.
	sessionDoneCh := make(chan interface{})
	defer close(sessionDoneCh)
	frameCh := make(chan *inboundFrame)
	col.Go(func() {
		for {
			f := new(inboundFrame)
			f.msgType, f.data, f.err = ws.ReadMessage()
			if f.err == nil && keepAlive {
				ws.SetReadDeadline(time.Now().Add(keepAliveReadLimit))
			}
			select {
			case frameCh <- f:
			case <-sessionDoneCh:
				return
			}
			if f.err != nil {
				return
			}
		}
	})

	pingTimer := time.NewTicker(wsPingInterval)
	defer pingTimer.Stop()

	for {
		select {
		case <-col.HaltCh():
			col.drainAcks(ws)
			col.closeWS(ws, websocket.CloseNormalClosure, "")
			return 0, nil
		case id := <-col.ackCh:
			if err = ws.WriteMessage(websocket.TextMessage, []byte(id)); err != nil {
				return 0, &ServerConnectionError{Message: "Connection to the server was interrupted", Err: err}
			}
			acksSent.Inc()
		case <-pingTimer.C:
			ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
		case f := <-frameCh:
			if f.err != nil {
				return col.classifyStreamEnd(f.err)
			}
			delivery := new(commands.ParcelDelivery)
			if f.msgType != websocket.BinaryMessage || delivery.Unmarshal(f.data) != nil {
				col.closeWS(ws, websocket.ClosePolicyViolation, "Invalid parcel delivery")
				return 0, newServerBindingError("Received invalid message from server")
			}
			if retryDelay, err = col.emit(ws, delivery, pingTimer); retryDelay != 0 || err != nil {
				return retryDelay, err
			}
			if col.isHalted() {
				return 0, nil
			}
		}
	}
}

// emit hands one delivery to the consumer, while continuing to service
// acknowledgements and pings.  The engine reads no further frames until the
// consumer has taken the element.
func (col *Collection) emit(ws *websocket.Conn, delivery *commands.ParcelDelivery, pingTimer *time.Ticker) (time.Duration, error) {
	pc := &ParcelCollection{
		Parcel:              delivery.Parcel,
		TrustedCertificates: col.trustedCerts,
		deliveryID:          delivery.DeliveryID,
		col:                 col,
	}
	for {
		select {
		case col.parcelCh <- pc:
			parcelsCollected.Inc()
			return 0, nil
		case id := <-col.ackCh:
			if err := ws.WriteMessage(websocket.TextMessage, []byte(id)); err != nil {
				return 0, &ServerConnectionError{Message: "Connection to the server was interrupted", Err: err}
			}
			acksSent.Inc()
		case <-pingTimer.C:
			ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
		case <-col.HaltCh():
			col.drainAcks(ws)
			col.closeWS(ws, websocket.CloseNormalClosure, "")
			return 0, nil
		}
	}
}

// classifyStreamEnd maps the error that ended the inbound stream to either
// a reconnect request (keep-alive only) or a terminal outcome.
func (col *Collection) classifyStreamEnd(err error) (time.Duration, error) {
	keepAlive := col.mode == StreamingModeKeepAlive

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch {
		case closeErr.Code == websocket.CloseNormalClosure:
			return 0, nil
		case keepAlive && closeErr.Code == websocket.CloseInternalServerErr:
			col.log.Debug("Server closed with an internal error, will reconnect.")
			return reconnectDelayTimeout, nil
		case keepAlive && closeErr.Code == websocket.CloseAbnormalClosure:
			return reconnectDelayDisconnect, nil
		default:
			return 0, newServerConnectionError(
				"Server closed the connection unexpectedly (code: %d, reason: %s)",
				closeErr.Code, closeErr.Text)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		if keepAlive {
			col.log.Debug("Read timed out, will reconnect.")
			return reconnectDelayTimeout, nil
		}
		return 0, &ServerConnectionError{Message: "Connection to the server timed out", Err: err}
	}

	// Abrupt end of stream without a close frame.
	if keepAlive {
		col.log.Debugf("Connection interrupted (%v), will reconnect.", err)
		return reconnectDelayDisconnect, nil
	}
	return 0, &ServerConnectionError{Message: "Connection to the server was interrupted", Err: err}
}

// drainAcks sends any acknowledgements already requested by the caller.
// Invoked on cancellation, before the closing handshake.
func (col *Collection) drainAcks(ws *websocket.Conn) {
	for {
		select {
		case id := <-col.ackCh:
			if err := ws.WriteMessage(websocket.TextMessage, []byte(id)); err != nil {
				return
			}
			acksSent.Inc()
		default:
			return
		}
	}
}

func (col *Collection) closeWS(ws *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout)); err != nil {
		col.log.Debugf("Failed to send close frame: %v", err)
	}
}

func (col *Collection) notifyStatus(err error) {
	if fn := col.c.cfg.OnStatusFn; fn != nil {
		fn(err)
	}
}

func (col *Collection) isHalted() bool {
	select {
	case <-col.HaltCh():
		return true
	default:
		return false
	}
}
