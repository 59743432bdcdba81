// commands.go - PoWeb wire messages.
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

// Package commands implements the messages exchanged on the PoWeb binding:
// the handshake challenge and response framed on the parcel collection
// WebSocket, the parcel delivery frame, and the node registration payloads
// carried over the unary HTTP endpoints.  All messages are serialised as
// CBOR.
package commands

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// InvalidMessageError is the error returned when a serialised message
// cannot be decoded, or decodes into a semantically invalid message.
type InvalidMessageError struct {
	// Err is the original error that caused decoding to fail.
	Err error
}

// Error implements the error interface.
func (e *InvalidMessageError) Error() string {
	return fmt.Sprintf("commands: invalid message: %v", e.Err)
}

// Unwrap returns the underlying decode error.
func (e *InvalidMessageError) Unwrap() error {
	return e.Err
}

func newInvalidMessageError(f string, a ...interface{}) error {
	return &InvalidMessageError{Err: fmt.Errorf(f, a...)}
}

// HandshakeChallenge is the first message of a parcel collection session,
// sent by the server as a binary frame.
type HandshakeChallenge struct {
	// Nonce is the opaque byte string each nonce signer must sign to prove
	// possession of its private key.
	Nonce []byte
}

// Marshal serialises the HandshakeChallenge.
func (c *HandshakeChallenge) Marshal() ([]byte, error) {
	return cbor.Marshal(c)
}

// Unmarshal deserialises the HandshakeChallenge.
func (c *HandshakeChallenge) Unmarshal(b []byte) error {
	if err := cbor.Unmarshal(b, c); err != nil {
		return &InvalidMessageError{Err: err}
	}
	if len(c.Nonce) == 0 {
		return newInvalidMessageError("handshake challenge has an empty nonce")
	}
	return nil
}

// HandshakeResponse is the client's reply to a HandshakeChallenge, sent as
// a binary frame.  It carries one detached signature over the nonce per
// nonce signer, in the order the signers were supplied.
type HandshakeResponse struct {
	// NonceSignatures are the detached signatures over the challenge nonce.
	NonceSignatures [][]byte
}

// Marshal serialises the HandshakeResponse.
func (r *HandshakeResponse) Marshal() ([]byte, error) {
	return cbor.Marshal(r)
}

// Unmarshal deserialises the HandshakeResponse.
func (r *HandshakeResponse) Unmarshal(b []byte) error {
	if err := cbor.Unmarshal(b, r); err != nil {
		return &InvalidMessageError{Err: err}
	}
	if len(r.NonceSignatures) == 0 {
		return newInvalidMessageError("handshake response has no signatures")
	}
	return nil
}

// ParcelDelivery is a single server to client parcel hand-off on the
// collection socket, sent as a binary frame.  The DeliveryID is an opaque
// server-assigned token that the client echoes back verbatim, as a text
// frame, to acknowledge receipt.
type ParcelDelivery struct {
	// DeliveryID identifies this delivery for acknowledgement purposes.
	DeliveryID string

	// Parcel is the serialised parcel.  The client never interprets it.
	Parcel []byte
}

// Marshal serialises the ParcelDelivery.
func (d *ParcelDelivery) Marshal() ([]byte, error) {
	return cbor.Marshal(d)
}

// Unmarshal deserialises the ParcelDelivery.
func (d *ParcelDelivery) Unmarshal(b []byte) error {
	if err := cbor.Unmarshal(b, d); err != nil {
		return &InvalidMessageError{Err: err}
	}
	if d.DeliveryID == "" {
		return newInvalidMessageError("parcel delivery has an empty delivery id")
	}
	return nil
}

// NodeRegistrationRequest is the payload POSTed to the node registration
// endpoint.  The Authorization is the opaque value previously issued by the
// pre-registration endpoint.
type NodeRegistrationRequest struct {
	// NodePublicKey is the DER encoding of the node's public key.
	NodePublicKey []byte

	// Authorization is the registration authorization issued by the gateway.
	Authorization []byte
}

// Marshal serialises the NodeRegistrationRequest.
func (r *NodeRegistrationRequest) Marshal() ([]byte, error) {
	return cbor.Marshal(r)
}

// Unmarshal deserialises the NodeRegistrationRequest.
func (r *NodeRegistrationRequest) Unmarshal(b []byte) error {
	if err := cbor.Unmarshal(b, r); err != nil {
		return &InvalidMessageError{Err: err}
	}
	if len(r.NodePublicKey) == 0 {
		return newInvalidMessageError("node registration request has an empty public key")
	}
	return nil
}

// NodeRegistration is the payload returned by the node registration
// endpoint: the freshly issued node certificate, the gateway's own
// certificate, and the gateway's public address.
type NodeRegistration struct {
	// NodeCertificate is the DER encoding of the node's new certificate.
	NodeCertificate []byte

	// GatewayCertificate is the DER encoding of the gateway's certificate.
	GatewayCertificate []byte

	// GatewayInternetAddress is the public address of the gateway, if any.
	GatewayInternetAddress string
}

// Marshal serialises the NodeRegistration.
func (r *NodeRegistration) Marshal() ([]byte, error) {
	return cbor.Marshal(r)
}

// Unmarshal deserialises the NodeRegistration.
func (r *NodeRegistration) Unmarshal(b []byte) error {
	if err := cbor.Unmarshal(b, r); err != nil {
		return &InvalidMessageError{Err: err}
	}
	if len(r.NodeCertificate) == 0 {
		return newInvalidMessageError("node registration has an empty node certificate")
	}
	return nil
}
