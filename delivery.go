// delivery.go - Parcel delivery.
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
	"encoding/base64"
	"net/http"
)

// DeliverParcel POSTs a parcel to the gateway for onward delivery.  The
// request is countersigned by signer: the Authorization header carries a
// detached signature over the raw parcel bytes.
func (c *Client) DeliverParcel(ctx context.Context, parcel []byte, signer Signer) error {
	if c.isShutdown() {
		return ErrShutdown
	}
	if signer == nil {
		return &NonceSignerError{Message: "A signer must be specified"}
	}

	signature, err := signer.Sign(parcel, SignatureParcelDelivery)
	if err != nil {
		return &NonceSignerError{Message: "Failed to countersign the parcel", Err: err}
	}
	authorization := CountersignatureAuthPrefix + base64.StdEncoding.EncodeToString(signature)

	c.log.Debugf("Delivering parcel (%d bytes)", len(parcel))
	result, err := c.transport.post(ctx, parcelDeliveryPath, ContentTypeParcel, parcel, authorization)
	if err != nil {
		return err
	}
	if result.status == http.StatusUnprocessableEntity {
		return &RejectedParcelError{Message: "The server rejected the parcel"}
	}
	if err = checkStatus(result); err != nil {
		return err
	}
	parcelsDelivered.Inc()
	return nil
}
