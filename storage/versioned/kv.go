////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package versioned wraps an ekv.KeyValue with prefixed, versioned objects.
// Every persisted component of the engine (drafts, upload queues, encryption
// settings, keys and the KV message backend) stores its state through it.
package versioned

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/ekv"
	"gitlab.com/xx_network/primitives/netTime"
)

// PrefixSeparator separates nested prefixes in a full key.
const PrefixSeparator = "/"

// MakeConversationPrefix returns the prefix under which all state scoped to a
// single conversation is kept.
func MakeConversationPrefix(conversationID int64) string {
	return "Conversation:" + strconv.FormatInt(conversationID, 10)
}

// Object is the envelope written for every key in a KV. It is stored as JSON.
type Object struct {
	Version   uint64
	Timestamp time.Time
	Data      []byte
}

// Unmarshal satisfies ekv.Unmarshaler.
func (o *Object) Unmarshal(data []byte) error {
	return json.Unmarshal(data, o)
}

// Marshal satisfies ekv.Marshaler.
func (o *Object) Marshal() []byte {
	d, err := json.Marshal(o)
	if err != nil {
		jww.FATAL.Panicf("Could not marshal versioned object: %+v", err)
	}
	return d
}

// KV stores versioned objects under a key prefix.
type KV struct {
	data   ekv.KeyValue
	prefix string
}

// NewKV creates a versioned key/value store backed by the given ekv.KeyValue.
func NewKV(data ekv.KeyValue) *KV {
	return &KV{data: data}
}

// Get returns the object stored at the key for the given version. Use Exists
// on the returned error to distinguish a missing key from a failed read.
func (v *KV) Get(key string, version uint64) (*Object, error) {
	key = v.makeKey(key, version)
	jww.TRACE.Printf("[KV] get %s", key)

	result := &Object{}
	if err := v.data.Get(key, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Set upserts the object. The version stored in the object selects the key.
func (v *KV) Set(key string, object *Object) error {
	key = v.makeKey(key, object.Version)
	jww.TRACE.Printf("[KV] set %s", key)
	return v.data.Set(key, object)
}

// Delete removes the object stored at the key for the given version.
func (v *KV) Delete(key string, version uint64) error {
	key = v.makeKey(key, version)
	jww.TRACE.Printf("[KV] delete %s", key)
	return v.data.Delete(key)
}

// SetJSON marshals the value to JSON and stores it as a versioned object
// stamped with the current time.
func (v *KV) SetJSON(key string, version uint64, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s", key)
	}
	return v.Set(key, &Object{
		Version:   version,
		Timestamp: netTime.Now(),
		Data:      data,
	})
}

// GetJSON loads the object at key and unmarshals its data into value.
func (v *KV) GetJSON(key string, version uint64, value interface{}) error {
	obj, err := v.Get(key, version)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(obj.Data, value); err != nil {
		return errors.Wrapf(err, "failed to unmarshal %s", key)
	}
	return nil
}

// Prefix returns a new KV whose keys are nested under the given prefix.
func (v *KV) Prefix(prefix string) *KV {
	return &KV{
		data:   v.data,
		prefix: v.prefix + prefix + PrefixSeparator,
	}
}

// Exists returns false if the error indicates the element doesn't exist.
func (v *KV) Exists(err error) bool {
	return ekv.Exists(err)
}

func (v *KV) makeKey(key string, version uint64) string {
	return fmt.Sprintf("%s%s_%d", v.prefix, key, version)
}
