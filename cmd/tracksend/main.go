// SPDX-FileCopyrightText: 2025 The tracklight Authors
// SPDX-License-Identifier: Apache-2.0

// tracksend reads a JSON array of events and delivers them to a collection
// endpoint through the tracklight dispatch pipeline.  It is mainly useful for
// smoke-testing a collection endpoint and for replaying exported batches.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	tracklight "github.com/tracklight/tracklight-go"
)

const applicationName = "tracksend"

func readEvents(path string) ([]tracklight.Event, error) {
	var reader io.Reader = os.Stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}

		defer file.Close()
		reader = file
	}

	var events []tracklight.Event
	if err := json.NewDecoder(reader).Decode(&events); err != nil {
		return nil, fmt.Errorf("unable to decode events: %w", err)
	}

	return events, nil
}

// tracksend is the driver function.  It performs everything main() would do,
// except for obtaining the command-line arguments (which are passed to it).
func tracksend(arguments []string) int {
	var (
		f = pflag.NewFlagSet(applicationName, pflag.ContinueOnError)

		configFile     = f.StringP("file", "f", "", "configuration file holding the dispatcher section")
		eventsFile     = f.StringP("events", "e", "-", "JSON file containing an array of events, or - for stdin")
		batchSize      = f.Int("batch-size", 20, "maximum events per dispatch")
		metricsAddress = f.String("metrics", "", "optional listen address for prometheus metrics")
		debug          = f.Bool("debug", false, "enable debug logging")
	)

	if err := f.Parse(arguments); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	loggerConfig := zap.NewProductionConfig()
	if *debug {
		loggerConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	logger, err := loggerConfig.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	defer logger.Sync()

	v := viper.New()
	if len(*configFile) > 0 {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			logger.Error("Unable to read configuration", zap.Error(err))
			return 1
		}
	}

	o, err := tracklight.NewOutbounder(logger, v.Sub(tracklight.OutbounderKey))
	if err != nil {
		logger.Error("Unable to create outbounder", zap.Error(err))
		return 1
	}

	registry := prometheus.NewRegistry()
	om := tracklight.NewOutboundMeasures(registry)

	if len(*metricsAddress) > 0 {
		router := mux.NewRouter()
		router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddress, router); err != nil {
				logger.Warn("Metrics server exited", zap.Error(err))
			}
		}()
	}

	dispatcher, err := o.Start(om, nil)
	if err != nil {
		logger.Error("Unable to start dispatch pipeline", zap.Error(err))
		return 1
	}

	events, err := readEvents(*eventsFile)
	if err != nil {
		logger.Error("Unable to read events", zap.Error(err))
		return 1
	}

	if len(events) == 0 {
		logger.Warn("No events to send")
		return 0
	}

	if *batchSize < 1 {
		*batchSize = 1
	}

	var (
		finish   sync.WaitGroup
		failures int32
	)

	for start := 0; start < len(events); start += *batchSize {
		batch := events[start:min(start+*batchSize, len(events))]
		finish.Add(1)
		dispatcher.Dispatch(batch, func(err error) {
			defer finish.Done()
			if err != nil {
				atomic.AddInt32(&failures, 1)
				logger.Error("Batch delivery failed", zap.Int("events", len(batch)), zap.Error(err))
			}
		})
	}

	finish.Wait()

	if count := atomic.LoadInt32(&failures); count > 0 {
		logger.Error("Some batches were not delivered", zap.Int32("failures", count))
		return 2
	}

	logger.Info("All events delivered", zap.Int("events", len(events)))
	return 0
}

func main() {
	os.Exit(tracksend(os.Args[1:]))
}
