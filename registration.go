// registration.go - Node pre-registration and registration.
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
	"crypto"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"net/http"

	"github.com/relaycorp/awala-poweb-go/commands"
)

// PreRegistration is the outcome of pre-registering a node: the public key
// it was requested for and the opaque authorization the gateway issued,
// to be embedded in the subsequent registration request.
type PreRegistration struct {
	PublicKey     crypto.PublicKey
	Authorization []byte
}

// NodeRegistration is the outcome of registering a node.
type NodeRegistration struct {
	// NodeCertificate is the certificate the gateway issued to the node.
	NodeCertificate *x509.Certificate

	// GatewayCertificate is the gateway's own certificate.
	GatewayCertificate *x509.Certificate

	// GatewayInternetAddress is the public address of the gateway, if any.
	GatewayInternetAddress string
}

// PreRegisterNode requests a registration authorization for the given
// public key.  The request body is the lowercase hex SHA-256 digest of the
// DER encoding of the key.
func (c *Client) PreRegisterNode(ctx context.Context, publicKey crypto.PublicKey) (*PreRegistration, error) {
	if c.isShutdown() {
		return nil, ErrShutdown
	}

	keyDER, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(keyDER)
	body := []byte(hex.EncodeToString(digest[:]))

	c.log.Debugf("Pre-registering node (key digest: %s)", body)
	result, err := c.transport.post(ctx, preRegistrationPath, ContentTypePreRegistration, body, "")
	if err != nil {
		return nil, err
	}
	if err = checkStatus(result); err != nil {
		return nil, err
	}
	if result.contentType != ContentTypeRegistrationAuthorization {
		return nil, newServerBindingError("Server responded with an invalid content type (%s)", result.contentType)
	}

	return &PreRegistration{PublicKey: publicKey, Authorization: result.body}, nil
}

// RegisterNode completes a node registration by POSTing the serialised
// registration request, and returns the parsed registration.
func (c *Client) RegisterNode(ctx context.Context, registrationRequest []byte) (*NodeRegistration, error) {
	if c.isShutdown() {
		return nil, ErrShutdown
	}

	c.log.Debug("Registering node")
	result, err := c.transport.post(ctx, registrationPath, ContentTypeRegistrationRequest, registrationRequest, "")
	if err != nil {
		return nil, err
	}
	// The binding allows both 200 and 201 here.
	if result.status != http.StatusOK && result.status != http.StatusCreated {
		if err = checkStatus(result); err != nil {
			return nil, err
		}
	}
	if result.contentType != ContentTypeRegistration {
		return nil, newServerBindingError("Server responded with an invalid content type (%s)", result.contentType)
	}

	reg := new(commands.NodeRegistration)
	if err = reg.Unmarshal(result.body); err != nil {
		return nil, &ServerBindingError{Message: "Server sent a malformed registration", Err: err}
	}
	nodeCert, err := x509.ParseCertificate(reg.NodeCertificate)
	if err != nil {
		return nil, &ServerBindingError{Message: "Server sent a malformed node certificate", Err: err}
	}
	var gatewayCert *x509.Certificate
	if len(reg.GatewayCertificate) != 0 {
		gatewayCert, err = x509.ParseCertificate(reg.GatewayCertificate)
		if err != nil {
			return nil, &ServerBindingError{Message: "Server sent a malformed gateway certificate", Err: err}
		}
	}

	nodeRegistrations.Inc()
	c.log.Infof("Node registered (serial: %v)", nodeCert.SerialNumber)
	return &NodeRegistration{
		NodeCertificate:        nodeCert,
		GatewayCertificate:     gatewayCert,
		GatewayInternetAddress: reg.GatewayInternetAddress,
	}, nil
}
