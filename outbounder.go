// SPDX-FileCopyrightText: 2025 The tracklight Authors
// SPDX-License-Identifier: Apache-2.0
package tracklight

import (
	"net/http"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	// OutbounderKey is the Viper subkey which is expected to hold Outbounder configuration
	OutbounderKey = "dispatcher"

	DefaultMethod                      = "POST"
	DefaultEventEndpoint               = "http://localhost:8090/api/v1/events"
	DefaultWorkerPoolSize         uint = 10
	DefaultOutboundQueueSize      uint = 1000
	DefaultRequestTimeout              = 5 * time.Second
	DefaultClientTimeout               = 30 * time.Second
	DefaultMaxIdleConns                = 0
	DefaultMaxIdleConnsPerHost         = 100
	DefaultIdleConnTimeout             = 0 * time.Second
)

// Outbounder is the configuration for the outbound event delivery pipeline.
// An Outbounder is immutable once constructed.  The zero value is usable:
// every accessor falls back to the appropriate default.
type Outbounder struct {
	Method              string
	EventEndpoint       string
	UserAgent           string
	RequestTimeout      time.Duration
	ClientTimeout       time.Duration
	WorkerPoolSize      uint
	OutboundQueueSize   uint
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	Logger              *zap.Logger
}

// NewOutbounder returns an Outbounder unmarshalled from a Viper environment.
// This function allows the Viper instance to be nil, in which case an
// Outbounder with only defaults is returned.
func NewOutbounder(logger *zap.Logger, v *viper.Viper) (o *Outbounder, err error) {
	o = &Outbounder{Logger: logger}
	if v != nil {
		err = v.Unmarshal(o)
	}

	return
}

func (o *Outbounder) logger() *zap.Logger {
	if o != nil && o.Logger != nil {
		return o.Logger
	}

	return zap.NewNop()
}

func (o *Outbounder) method() string {
	if o != nil && len(o.Method) > 0 {
		return o.Method
	}

	return DefaultMethod
}

func (o *Outbounder) eventEndpoint() string {
	if o != nil && len(o.EventEndpoint) > 0 {
		return o.EventEndpoint
	}

	return DefaultEventEndpoint
}

// userAgent returns the explicitly configured identification string, if any.
// An empty return means no explicit value was supplied and the resolver is
// free to probe.
func (o *Outbounder) userAgent() string {
	if o != nil {
		return o.UserAgent
	}

	return ""
}

func (o *Outbounder) requestTimeout() time.Duration {
	if o != nil && o.RequestTimeout > 0 {
		return o.RequestTimeout
	}

	return DefaultRequestTimeout
}

func (o *Outbounder) clientTimeout() time.Duration {
	if o != nil && o.ClientTimeout > 0 {
		return o.ClientTimeout
	}

	return DefaultClientTimeout
}

func (o *Outbounder) workerPoolSize() uint {
	if o != nil && o.WorkerPoolSize > 0 {
		return o.WorkerPoolSize
	}

	return DefaultWorkerPoolSize
}

func (o *Outbounder) outboundQueueSize() uint {
	if o != nil && o.OutboundQueueSize > 0 {
		return o.OutboundQueueSize
	}

	return DefaultOutboundQueueSize
}

func (o *Outbounder) maxIdleConns() int {
	if o != nil && o.MaxIdleConns > 0 {
		return o.MaxIdleConns
	}

	return DefaultMaxIdleConns
}

func (o *Outbounder) maxIdleConnsPerHost() int {
	if o != nil && o.MaxIdleConnsPerHost > 0 {
		return o.MaxIdleConnsPerHost
	}

	return DefaultMaxIdleConnsPerHost
}

func (o *Outbounder) idleConnTimeout() time.Duration {
	if o != nil && o.IdleConnTimeout > 0 {
		return o.IdleConnTimeout
	}

	return DefaultIdleConnTimeout
}

func (o *Outbounder) transport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        o.maxIdleConns(),
		MaxIdleConnsPerHost: o.maxIdleConnsPerHost(),
		IdleConnTimeout:     o.idleConnTimeout(),
	}
}

// Start assembles the full outbound pipeline from this Outbounder: a
// user-agent resolver seeded from the configuration, an event dispatcher,
// and a running worker pool sharing one instrumented HTTP client.  The probe
// may be nil, in which case the identification string resolves without one.
func (o *Outbounder) Start(om OutboundMeasures, probe UserAgentProbe) (Dispatcher, error) {
	userAgent := NewUserAgentResolver(o.logger(), o.userAgent(), probe, nil)
	dispatcher, outbounds, err := NewEventDispatcher(om, o, nil, userAgent)
	if err != nil {
		return nil, err
	}

	NewWorkerPool(om, o, outbounds).Run()
	return dispatcher, nil
}
