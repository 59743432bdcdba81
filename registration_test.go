// registration_test.go - Node registration tests.
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
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycorp/awala-poweb-go/commands"
)

func TestPreRegisterNode(t *testing.T) {
	publicKey, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	keyDER, err := x509.MarshalPKIXPublicKey(publicKey)
	require.NoError(t, err)
	digest := sha256.Sum256(keyDER)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/pre-registrations", r.URL.Path)
		assert.Equal(t, ContentTypePreRegistration, r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, hex.EncodeToString(digest[:]), string(body))

		w.Header().Set("Content-Type", ContentTypeRegistrationAuthorization)
		w.Write([]byte("the authorization"))
	}))
	defer srv.Close()

	client := testClientFor(t, srv)
	preReg, err := client.PreRegisterNode(testContext(t), publicKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("the authorization"), preReg.Authorization)
	assert.Equal(t, publicKey, preReg.PublicKey)
}

func TestPreRegisterNodeInvalidContentType(t *testing.T) {
	publicKey, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("nope"))
	}))
	defer srv.Close()

	client := testClientFor(t, srv)
	_, err = client.PreRegisterNode(testContext(t), publicKey)
	var bindErr *ServerBindingError
	require.ErrorAs(t, err, &bindErr)
	assert.Contains(t, err.Error(), "invalid content type")
}

func TestRegisterNode(t *testing.T) {
	nodeCert, _ := testCertificate(t)
	gatewayCert, _ := testCertificate(t)
	registration := &commands.NodeRegistration{
		NodeCertificate:        nodeCert.Raw,
		GatewayCertificate:     gatewayCert.Raw,
		GatewayInternetAddress: "braavos.relaycorp.cloud",
	}
	registrationSerialized, err := registration.Marshal()
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/nodes", r.URL.Path)
		assert.Equal(t, ContentTypeRegistrationRequest, r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte("the request"), body)

		w.Header().Set("Content-Type", ContentTypeRegistration)
		w.WriteHeader(http.StatusCreated)
		w.Write(registrationSerialized)
	}))
	defer srv.Close()

	client := testClientFor(t, srv)
	reg, err := client.RegisterNode(testContext(t), []byte("the request"))
	require.NoError(t, err)
	assert.True(t, reg.NodeCertificate.Equal(nodeCert))
	assert.True(t, reg.GatewayCertificate.Equal(gatewayCert))
	assert.Equal(t, "braavos.relaycorp.cloud", reg.GatewayInternetAddress)
}

func TestRegisterNodeMalformedRegistration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", ContentTypeRegistration)
		w.Write([]byte("garbage"))
	}))
	defer srv.Close()

	client := testClientFor(t, srv)
	_, err := client.RegisterNode(testContext(t), []byte("the request"))
	var bindErr *ServerBindingError
	require.ErrorAs(t, err, &bindErr)
}

func TestRegisterNodeClientBindingError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := testClientFor(t, srv)
	_, err := client.RegisterNode(testContext(t), []byte("the request"))
	var clientErr *ClientBindingError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, http.StatusForbidden, clientErr.StatusCode)
}
