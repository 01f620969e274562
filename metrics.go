// SPDX-FileCopyrightText: 2025 The tracklight Authors
// SPDX-License-Identifier: Apache-2.0
package tracklight

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics"
	gokitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names
const (
	OutboundInFlightGauge         = "outbound_inflight"
	OutboundRequestDuration       = "outbound_request_duration_seconds"
	OutboundRequestCounter        = "outbound_requests"
	OutboundQueueSize             = "outbound_queue_size"
	OutboundDroppedMessageCounter = "outbound_dropped_messages"
)

// OutboundMeasures groups the metrics instrumenting the outbound pipeline.
type OutboundMeasures struct {
	InFlight        prometheus.Gauge
	RequestDuration prometheus.Observer
	RequestCounter  *prometheus.CounterVec
	QueueSize       metrics.Gauge
	DroppedMessages metrics.Counter
}

// NewOutboundMeasures constructs and registers the outbound metrics on the
// given registerer.  Registering the same names twice on one registerer
// panics, as with any prometheus collector.
func NewOutboundMeasures(r prometheus.Registerer) OutboundMeasures {
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: OutboundInFlightGauge,
		Help: "The number of active, in-flight outbound requests",
	})

	requestDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    OutboundRequestDuration,
		Help:    "The durations of outbound requests",
		Buckets: []float64{.25, .5, 1, 2.5, 5, 10},
	})

	requestCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: OutboundRequestCounter,
		Help: "The count of outbound requests",
	}, []string{"code"})

	queueSize := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: OutboundQueueSize,
		Help: "The current number of requests waiting to be sent outbound",
	}, []string{})

	droppedMessages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: OutboundDroppedMessageCounter,
		Help: "The total count of batches dropped before transmission",
	}, []string{})

	r.MustRegister(inFlight, requestDuration, requestCounter, queueSize, droppedMessages)

	return OutboundMeasures{
		InFlight:        inFlight,
		RequestDuration: requestDuration,
		RequestCounter:  requestCounter,
		QueueSize:       gokitprometheus.NewGauge(queueSize),
		DroppedMessages: gokitprometheus.NewCounter(droppedMessages),
	}
}

func InstrumentOutboundDuration(obs prometheus.Observer, next http.RoundTripper) promhttp.RoundTripperFunc {
	return promhttp.RoundTripperFunc(func(request *http.Request) (*http.Response, error) {
		start := time.Now()
		response, err := next.RoundTrip(request)
		if err == nil {
			obs.Observe(time.Since(start).Seconds())
		}

		return response, err
	})
}

func InstrumentOutboundCounter(counter *prometheus.CounterVec, next http.RoundTripper) promhttp.RoundTripperFunc {
	return promhttp.RoundTripperFunc(func(request *http.Request) (*http.Response, error) {
		response, err := next.RoundTrip(request)
		if err == nil {
			// use "200" as the result from a 0 or negative status code, to be consistent with other golang APIs
			labels := prometheus.Labels{"code": "200"}
			if response.StatusCode > 0 {
				labels["code"] = strconv.Itoa(response.StatusCode)
			}

			counter.With(labels).Inc()
		}

		return response, err
	})
}

// NewOutboundRoundTripper produces an http.RoundTripper from the configured
// Outbounder that is also decorated with appropriate metrics.
func NewOutboundRoundTripper(om OutboundMeasures, o *Outbounder) http.RoundTripper {
	return InstrumentOutboundCounter(
		om.RequestCounter,
		InstrumentOutboundDuration(
			om.RequestDuration,
			promhttp.InstrumentRoundTripperInFlight(om.InFlight, o.transport()),
		),
	)
}
