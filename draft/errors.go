////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package draft

import "github.com/pkg/errors"

var (
	// ErrUploadNotResolved is returned when a message cannot be built because
	// an attachment upload failed or is still running. Cancel or wait for the
	// upload rather than retrying.
	ErrUploadNotResolved = errors.New("attachment upload not resolved")

	// ErrNothingToSend is returned when there is no text and no attachment.
	ErrNothingToSend = errors.New("nothing to send")
)
