// SPDX-FileCopyrightText: 2025 The tracklight Authors
// SPDX-License-Identifier: Apache-2.0
package tracklight

import (
	"errors"
	"net/http"
	"sync"
)

var ErrOutboundQueueFull = errors.New("outbound message queue full")

// Event is a single unit of tracked activity.  Its structure is owned by the
// instrumentation layer; this package only requires that a batch of events be
// serializable by the configured Serializer.
type Event any

// Dispatcher handles the creation and delivery of HTTP requests carrying
// batches of events.  A Dispatcher represents the send side for enqueuing
// HTTP requests.
type Dispatcher interface {
	// Dispatch serializes the given events and delivers them in exactly one
	// HTTP request.  The done callback receives the terminal outcome of that
	// request: nil once the HTTP exchange completes (regardless of status
	// code), or the serialization or transport error otherwise.  done is
	// invoked exactly once per call and may be nil.
	//
	// Dispatch never blocks on the network.  Calls are independent and safe
	// for concurrent use.
	Dispatch(events []Event, done func(error))
}

// completion delivers the terminal result of a single dispatch.  The once
// guard makes duplicate delivery impossible regardless of which pipeline
// stage completes the envelope.
type completion struct {
	once sync.Once
	done func(error)
}

func (c *completion) complete(err error) {
	c.once.Do(func() {
		if c.done != nil {
			c.done(err)
		}
	})
}

// outboundEnvelope is a tuple of information related to handling an
// asynchronous HTTP request.
type outboundEnvelope struct {
	request *http.Request
	cancel  func()
	done    *completion
}
