////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package conversation

import (
	"encoding/json"
	"time"

	"gitlab.com/elixxir/chatsync/draft"
	"gitlab.com/elixxir/chatsync/reaction"
)

// Params configures a Controller.
type Params struct {
	// AccountID scopes upload queries to this account.
	AccountID int64

	// OwnerID is the user ID of the viewer.
	OwnerID int64

	// ReactionSettleDelay is how long a confirmed reaction waits for an
	// authoritative update before it is applied locally.
	ReactionSettleDelay time.Duration

	// DraftDebounce delays draft text writes.
	DraftDebounce time.Duration

	// SendRate is the maximum number of dispatches per second.
	SendRate int

	// DeleteForAllWindow is how long after sending a message the sender may
	// delete it for everyone without admin rights.
	DeleteForAllWindow time.Duration

	// EditWindow is how long after sending a message it may be edited.
	EditWindow time.Duration

	// AutoRead marks incoming messages as read as they arrive.
	AutoRead bool

	// ReadOnly rejects every mutating operation with ErrReadOnlyAccount.
	ReadOnly bool

	// NotificationBuffer is the channel size of each Subscription.
	NotificationBuffer int
}

// paramsDisk will be the marshal-able and umarshal-able object.
type paramsDisk struct {
	AccountID           int64
	OwnerID             int64
	ReactionSettleDelay time.Duration
	DraftDebounce       time.Duration
	SendRate            int
	DeleteForAllWindow  time.Duration
	EditWindow          time.Duration
	AutoRead            bool
	ReadOnly            bool
	NotificationBuffer  int
}

// GetDefaultParams returns a default set of Params.
func GetDefaultParams() Params {
	return Params{
		ReactionSettleDelay: reaction.DefaultSettleDelay,
		DraftDebounce:       draft.DefaultDebounce,
		SendRate:            10,
		DeleteForAllWindow:  24 * time.Hour,
		EditWindow:          24 * time.Hour,
		AutoRead:            false,
		ReadOnly:            false,
		NotificationBuffer:  1,
	}
}

// GetParameters returns the default Params, overridden by the JSON string if
// it is not empty.
func GetParameters(params string) (Params, error) {
	p := GetDefaultParams()
	if len(params) > 0 {
		err := json.Unmarshal([]byte(params), &p)
		if err != nil {
			return Params{}, err
		}
	}
	return p, nil
}

// MarshalJSON adheres to the json.Marshaler interface.
func (p Params) MarshalJSON() ([]byte, error) {
	return json.Marshal(paramsDisk(p))
}

// UnmarshalJSON adheres to the json.Unmarshaler interface. Fields missing
// from data keep their current value.
func (p *Params) UnmarshalJSON(data []byte) error {
	pDisk := paramsDisk(*p)
	if err := json.Unmarshal(data, &pDisk); err != nil {
		return err
	}
	*p = Params(pDisk)
	return nil
}
