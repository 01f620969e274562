// SPDX-FileCopyrightText: 2025 The tracklight Authors
// SPDX-License-Identifier: Apache-2.0
package tracklight

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/go-kit/kit/metrics"
)

const eventContentType = "application/json; charset=utf-8"

var (
	ErrorEncodingFailed       = errors.New("encoding failed")
	ErrorMalformedHttpRequest = errors.New("malformed http request")
)

// eventDispatcher is an internal Dispatcher implementation that sends
// envelopes via the returned channel.  The channel may be used to spawn one
// or more workers to process the envelopes.
type eventDispatcher struct {
	logger          *zap.Logger
	method          string
	endpoint        string
	timeout         time.Duration
	serializer      Serializer
	userAgent       *UserAgentResolver
	queueSize       metrics.Gauge
	droppedMessages metrics.Counter
	outbounds       chan<- outboundEnvelope
}

// NewEventDispatcher is an eventDispatcher factory which sends envelopes via
// the returned channel.  The channel may be used to spawn one or more workers
// to process the envelopes.  A nil serializer falls back to JSONSerializer;
// a nil userAgent falls back to a resolver seeded from the Outbounder, which
// probes nothing.
func NewEventDispatcher(om OutboundMeasures, o *Outbounder, serializer Serializer, userAgent *UserAgentResolver) (Dispatcher, <-chan outboundEnvelope, error) {
	if serializer == nil {
		serializer = JSONSerializer{}
	}

	if userAgent == nil {
		userAgent = NewUserAgentResolver(o.logger(), o.userAgent(), nil, nil)
	}

	endpoint := o.eventEndpoint()
	if _, err := http.NewRequest(o.method(), endpoint, nil); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrorMalformedHttpRequest, err)
	}

	outbounds := make(chan outboundEnvelope, o.outboundQueueSize())

	return &eventDispatcher{
		logger:          o.logger(),
		method:          o.method(),
		endpoint:        endpoint,
		timeout:         o.requestTimeout(),
		serializer:      serializer,
		userAgent:       userAgent,
		queueSize:       om.QueueSize,
		droppedMessages: om.DroppedMessages,
		outbounds:       outbounds,
	}, outbounds, nil
}

func (d *eventDispatcher) Dispatch(events []Event, done func(error)) {
	c := &completion{done: done}

	contents, err := d.serializer.Serialize(events)
	if err != nil {
		d.droppedMessages.Add(1.0)
		d.logger.Error("Dropped batch, serialization failed", zap.Int("events", len(events)), zap.Error(err))
		c.complete(fmt.Errorf("%w: %s", ErrorEncodingFailed, err))
		return
	}

	request, err := d.newRequest(bytes.NewReader(contents))
	if err != nil {
		d.droppedMessages.Add(1.0)
		c.complete(err)
		return
	}

	d.logger.Debug("dispatching events",
		zap.Int("events", len(events)),
		zap.String("url", d.endpoint),
		zap.String("userAgent", request.Header.Get("User-Agent")),
		zap.Int("bytes", len(contents)),
	)

	d.send(request, c)
}

// newRequest creates a basic HTTP request appropriate for this
// eventDispatcher.  The User-Agent header is set only when the resolver
// already holds a value; a dispatch racing ahead of resolution legitimately
// goes out without one.
func (d *eventDispatcher) newRequest(body io.Reader) (*http.Request, error) {
	request, err := http.NewRequest(d.method, d.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrorMalformedHttpRequest, err)
	}

	request.Header.Set("Content-Type", eventContentType)
	if userAgent, ok := d.userAgent.Current(); ok {
		request.Header.Set("User-Agent", userAgent)
	}

	return request, nil
}

// send wraps the given request in an outboundEnvelope together with a
// cancellable context, then attempts a non-blocking handoff to the outbounds
// channel.  If the queue is full the envelope is dropped and its completion
// fires immediately, so the caller still observes exactly one outcome.
func (d *eventDispatcher) send(request *http.Request, c *completion) {
	// increment the queue size first, so that we always keep a positive queue size
	d.queueSize.Add(1.0)
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	select {
	case d.outbounds <- outboundEnvelope{request.WithContext(ctx), cancel, c}:

	default:
		d.queueSize.Add(-1.0) // the message never made it to the queue
		cancel()
		d.droppedMessages.Add(1.0)
		d.logger.Error("Dropped batch, outbound queue full", zap.String("url", d.endpoint))
		c.complete(ErrOutboundQueueFull)
	}
}
