// constants.go - PoWeb binding literals.
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

const (
	// ContentTypeParcel is the media type of a serialised parcel.
	ContentTypeParcel = "application/vnd.relaynet.parcel"

	// ContentTypePreRegistration is the media type of a pre-registration
	// request body.
	ContentTypePreRegistration = "application/vnd.relaynet.node-pre-registration"

	// ContentTypeRegistrationAuthorization is the media type of a
	// pre-registration authorization.
	ContentTypeRegistrationAuthorization = "application/vnd.relaynet.node-registration.authorization"

	// ContentTypeRegistrationRequest is the media type of a node
	// registration request.
	ContentTypeRegistrationRequest = "application/vnd.relaynet.node-registration.request"

	// ContentTypeRegistration is the media type of a node registration.
	ContentTypeRegistration = "application/vnd.relaynet.node-registration.registration"

	// StreamingModeHeader is the request header selecting the parcel
	// collection streaming mode.
	StreamingModeHeader = "X-Relaynet-Streaming-Mode"

	// CountersignatureAuthPrefix is the Authorization scheme prefix for
	// parcel delivery countersignatures.
	CountersignatureAuthPrefix = "Relaynet-Countersignature "

	preRegistrationPath  = "/pre-registrations"
	registrationPath     = "/nodes"
	parcelDeliveryPath   = "/parcels"
	parcelCollectionPath = "/parcel-collection"
)
