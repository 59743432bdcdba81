// signer.go - Detached signature capability.
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
	"crypto/x509"
	"fmt"
)

// SignaturePurpose distinguishes the contexts a detached signature is
// produced for, so a signature minted for one context cannot be replayed in
// another.
type SignaturePurpose string

const (
	// SignatureNonce is the purpose of handshake nonce signatures.
	SignatureNonce SignaturePurpose = "awala.poweb.nonce"

	// SignatureParcelDelivery is the purpose of the countersignature sent
	// alongside a parcel delivery.
	SignatureParcelDelivery SignaturePurpose = "awala.poweb.parcel-delivery"
)

// Signer is the capability to produce detached signatures under one
// certificate.  Implementations must be safe for use from the collection
// engine's go routine; they are free to be stateless or stateful.
type Signer interface {
	// Sign returns a detached signature over payload, bound to the given
	// purpose.
	Sign(payload []byte, purpose SignaturePurpose) ([]byte, error)

	// Certificate returns the certificate the signatures are attributable
	// to.  It is the trust anchor for any parcel collected under this
	// signer.
	Certificate() *x509.Certificate
}

type ed25519Signer struct {
	cert *x509.Certificate
	key  ed25519.PrivateKey
}

// NewED25519Signer returns a Signer backed by an Ed25519 private key.  The
// signed payload is prefixed with the purpose string, so signatures are not
// interchangeable across contexts.
func NewED25519Signer(cert *x509.Certificate, key ed25519.PrivateKey) (Signer, error) {
	if cert == nil {
		return nil, fmt.Errorf("poweb: signer certificate must not be nil")
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("poweb: invalid ed25519 private key size: %d", len(key))
	}
	return &ed25519Signer{cert: cert, key: key}, nil
}

func (s *ed25519Signer) Sign(payload []byte, purpose SignaturePurpose) ([]byte, error) {
	signed := make([]byte, 0, len(purpose)+1+len(payload))
	signed = append(signed, purpose...)
	signed = append(signed, 0x00)
	signed = append(signed, payload...)
	return ed25519.Sign(s.key, signed), nil
}

func (s *ed25519Signer) Certificate() *x509.Certificate {
	return s.cert
}
