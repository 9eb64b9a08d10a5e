////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package event

import jww "github.com/spf13/jwalterweatherman"

// Priorities used by the engine when reporting.
const (
	// Best-effort failures that did not affect the user-visible operation,
	// such as a failed write to durable storage.
	PriorityWarning = 1

	// Operation results the embedder should surface, such as a message that
	// failed to send or a finished key exchange.
	PriorityNotice = 10

	// Failures the user must act on.
	PriorityError = 20
)

// Categories used by the engine when reporting.
const (
	CategoryStore        = "MessageStore"
	CategorySend         = "SendQueue"
	CategoryUpload       = "Upload"
	CategoryEncryption   = "Encryption"
	CategoryConversation = "Conversation"
)

// Callback receives reported events.
type Callback func(priority int, category, evtType, details string)

// Reporter is the reporting API used by engine components.
type Reporter interface {
	Report(priority int, category, evtType, details string)
}

// LogReporter is a Reporter that only writes events to the log. Components
// fall back to it when no Reporter is injected.
type LogReporter struct{}

// Report logs the event at a level derived from its priority.
func (LogReporter) Report(priority int, category, evtType, details string) {
	switch {
	case priority >= PriorityError:
		jww.ERROR.Printf("[%s] %s: %s", category, evtType, details)
	case priority >= PriorityNotice:
		jww.INFO.Printf("[%s] %s: %s", category, evtType, details)
	default:
		jww.WARN.Printf("[%s] %s: %s", category, evtType, details)
	}
}
