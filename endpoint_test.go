// endpoint_test.go - Gateway endpoint tests.
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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEndpoint(t *testing.T) {
	e := LocalEndpoint(0)
	assert.Equal(t, "127.0.0.1", e.Host())
	assert.Equal(t, uint16(DefaultLocalPort), e.Port())
	assert.False(t, e.UseTLS())
	assert.Equal(t, "http://127.0.0.1:276/v1", e.HTTPURL())
	assert.Equal(t, "ws://127.0.0.1:276/v1", e.WebSocketURL())
}

func TestLocalEndpointCustomPort(t *testing.T) {
	e := LocalEndpoint(13276)
	assert.Equal(t, "http://127.0.0.1:13276/v1", e.HTTPURL())
}

func TestRemoteEndpoint(t *testing.T) {
	e := RemoteEndpoint("poweb.relaycorp.cloud", 0)
	assert.Equal(t, uint16(DefaultRemotePort), e.Port())
	assert.True(t, e.UseTLS())
	assert.Equal(t, "https://poweb.relaycorp.cloud:443/v1", e.HTTPURL())
	assert.Equal(t, "wss://poweb.relaycorp.cloud:443/v1", e.WebSocketURL())
}

func TestNewEndpoint(t *testing.T) {
	e, err := NewEndpoint("gateway.example", 8080, false)
	require.NoError(t, err)
	assert.Equal(t, "http://gateway.example:8080/v1", e.HTTPURL())

	_, err = NewEndpoint("", 8080, false)
	assert.Error(t, err)

	_, err = NewEndpoint("gateway.example", 0, false)
	assert.Error(t, err)
}
