////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package conversation

import "github.com/pkg/errors"

var (
	// ErrReadOnlyAccount is returned by every mutating operation when the
	// account cannot write. No state changes.
	ErrReadOnlyAccount = errors.New("account is read only")

	// ErrNotPermitted is returned when the conversation permissions or the
	// edit and delete time windows forbid the operation.
	ErrNotPermitted = errors.New("operation not permitted")

	// ErrClosed is returned by operations on a closed Controller.
	ErrClosed = errors.New("conversation is closed")

	// ErrUnknownMessage is returned for local IDs that are not stored.
	ErrUnknownMessage = errors.New("unknown message")

	// ErrNoEdit is returned by edit operations when no edit is open.
	ErrNoEdit = errors.New("no message is being edited")
)

// Error messages.
const (
	unknownMessageErr = "message %d"
	notSentErr        = "message %d is %s, only sent messages allow this"
	editWindowErr     = "message %d is older than the %s edit window"
	notOutgoingErr    = "message %d was not sent by this account"
	deleteForAllErr   = "message %d cannot be deleted for everyone"
	canPinErr         = "pinning is not allowed in conversation %d"
	restoreErr        = "message %d is not restorable"
	retryErr          = "message %d is %s, only failed messages can be retried"
)
