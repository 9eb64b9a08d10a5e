////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package versioned

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/ekv"
)

// Getting a key that was never set returns an error that does not exist.
func TestKV_Get_Missing(t *testing.T) {
	vkv := NewKV(ekv.MakeMemstore())
	result, err := vkv.Get("missing", 0)
	if err == nil {
		t.Fatal("Getting a key that didn't exist should have returned an error")
	}
	if vkv.Exists(err) {
		t.Errorf("Exists should be false for a missing key: %+v", err)
	}
	if result != nil {
		t.Errorf("Missing key returned data: %+v", result)
	}
}

// Set then Get returns the same object for the same version only.
func TestKV_Set_Get(t *testing.T) {
	vkv := NewKV(ekv.MakeMemstore())
	original := &Object{
		Version:   3,
		Timestamp: time.Now(),
		Data:      []byte("draft text"),
	}
	require.NoError(t, vkv.Set("draft", original))

	result, err := vkv.Get("draft", 3)
	require.NoError(t, err)
	if !bytes.Equal(result.Data, original.Data) {
		t.Errorf("Unexpected data.\nexpected: %q\nreceived: %q",
			original.Data, result.Data)
	}

	_, err = vkv.Get("draft", 0)
	require.Error(t, err)
}

// Delete removes the stored object.
func TestKV_Delete(t *testing.T) {
	vkv := NewKV(ekv.MakeMemstore())
	require.NoError(t, vkv.SetJSON("upload", 0, []string{"a", "b"}))
	require.NoError(t, vkv.Delete("upload", 0))

	_, err := vkv.Get("upload", 0)
	require.Error(t, err)
	require.False(t, vkv.Exists(err))
}

// Prefixed stores do not see each other's keys.
func TestKV_Prefix(t *testing.T) {
	root := NewKV(ekv.MakeMemstore())
	a := root.Prefix(MakeConversationPrefix(1))
	b := root.Prefix(MakeConversationPrefix(2))

	require.NoError(t, a.SetJSON("text", 0, "hello"))

	var text string
	require.NoError(t, a.GetJSON("text", 0, &text))
	require.Equal(t, "hello", text)
	require.Error(t, b.GetJSON("text", 0, &text))

	expected := "Conversation:1/text_0"
	if key := a.makeKey("text", 0); key != expected {
		t.Errorf("Unexpected full key.\nexpected: %s\nreceived: %s",
			expected, key)
	}
}
