////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package upload

import (
	"encoding/json"
)

// Params configures the Coordinator.
type Params struct {
	// ProgressRate is the maximum number of progress reports delivered to
	// listeners per second.
	ProgressRate int

	// MaxSize rejects intents above this many bytes. Zero disables the check.
	MaxSize int64
}

// GetDefaultParams returns a default set of Params.
func GetDefaultParams() Params {
	return Params{
		ProgressRate: 2,
		MaxSize:      0,
	}
}

// GetParameters returns the default Params, overridden by the JSON string if
// it is not empty.
func GetParameters(params string) (Params, error) {
	p := GetDefaultParams()
	if len(params) > 0 {
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return Params{}, err
		}
	}
	return p, nil
}
