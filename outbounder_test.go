// SPDX-FileCopyrightText: 2025 The tracklight Authors
// SPDX-License-Identifier: Apache-2.0
package tracklight

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ExampleOutbounder() {
	var (
		finish = new(sync.WaitGroup)
		server = httptest.NewServer(http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
			if body, err := io.ReadAll(request.Body); err != nil {
				fmt.Println(err)
			} else {
				fmt.Printf("%s:%s:%s:%s\n", request.Method, request.Header.Get("Content-Type"), request.Header.Get("User-Agent"), body)
			}
		}))
	)

	defer server.Close()

	var (
		configuration = []byte(fmt.Sprintf(
			`{
				"eventEndpoint": "%s",
				"userAgent": "example-agent",
				"workerPoolSize": 1
			}`,
			server.URL,
		))

		v = viper.New()
	)

	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(configuration)); err != nil {
		fmt.Println(err)
		return
	}

	o, err := NewOutbounder(zap.NewNop(), v)
	if err != nil {
		fmt.Println(err)
		return
	}

	dispatcher, err := o.Start(NewTestOutboundMeasures(), nil)
	if err != nil {
		fmt.Println(err)
		return
	}

	finish.Add(1)
	dispatcher.Dispatch(
		[]Event{map[string]any{"name": "app_open"}},
		func(err error) {
			if err != nil {
				fmt.Println(err)
			}
			finish.Done()
		},
	)

	finish.Wait()

	// Output:
	// POST:application/json; charset=utf-8:example-agent:{"events":[{"name":"app_open"}]}
}

func testOutbounderDefaults(t *testing.T) {
	require := require.New(t)
	nilViper, err := NewOutbounder(nil, nil)
	require.NotNil(nilViper)
	require.NoError(err)

	withViper, err := NewOutbounder(nil, viper.New())
	require.NotNil(withViper)
	require.NoError(err)

	assert := assert.New(t)
	for _, o := range []*Outbounder{nil, new(Outbounder), nilViper, withViper} {
		assert.NotNil(o.logger())
		assert.Equal(DefaultMethod, o.method())
		assert.Equal(DefaultEventEndpoint, o.eventEndpoint())
		assert.Empty(o.userAgent())
		assert.Equal(DefaultRequestTimeout, o.requestTimeout())
		assert.Equal(DefaultClientTimeout, o.clientTimeout())
		assert.Equal(DefaultWorkerPoolSize, o.workerPoolSize())
		assert.Equal(DefaultOutboundQueueSize, o.outboundQueueSize())

		transport := o.transport()
		assert.Equal(DefaultMaxIdleConns, transport.MaxIdleConns)
		assert.Equal(DefaultMaxIdleConnsPerHost, transport.MaxIdleConnsPerHost)
		assert.Equal(DefaultIdleConnTimeout, transport.IdleConnTimeout)
	}
}

func testOutbounderUnmarshal(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		configuration = []byte(`{
			"method": "PUT",
			"eventEndpoint": "https://collect.example.com/api/v1/events",
			"userAgent": "custom-agent/1.0",
			"requestTimeout": "2s",
			"clientTimeout": "10s",
			"workerPoolSize": 2,
			"outboundQueueSize": 30,
			"maxIdleConns": 1,
			"maxIdleConnsPerHost": 5,
			"idleConnTimeout": "1m"
		}`)

		v = viper.New()
	)

	v.SetConfigType("json")
	require.NoError(v.ReadConfig(bytes.NewReader(configuration)))

	o, err := NewOutbounder(nil, v)
	require.NotNil(o)
	require.NoError(err)

	assert.Equal("PUT", o.method())
	assert.Equal("https://collect.example.com/api/v1/events", o.eventEndpoint())
	assert.Equal("custom-agent/1.0", o.userAgent())
	assert.Equal(2*time.Second, o.requestTimeout())
	assert.Equal(10*time.Second, o.clientTimeout())
	assert.Equal(uint(2), o.workerPoolSize())
	assert.Equal(uint(30), o.outboundQueueSize())

	transport := o.transport()
	assert.Equal(1, transport.MaxIdleConns)
	assert.Equal(5, transport.MaxIdleConnsPerHost)
	assert.Equal(time.Minute, transport.IdleConnTimeout)
}

func testOutbounderStartMalformedEndpoint(t *testing.T) {
	assert := assert.New(t)
	o := &Outbounder{EventEndpoint: "://missing-scheme"}

	dispatcher, err := o.Start(NewTestOutboundMeasures(), nil)
	assert.Nil(dispatcher)
	assert.ErrorIs(err, ErrorMalformedHttpRequest)
}

func TestOutbounder(t *testing.T) {
	t.Run("Defaults", testOutbounderDefaults)
	t.Run("Unmarshal", testOutbounderUnmarshal)
	t.Run("Start", func(t *testing.T) {
		t.Run("MalformedEndpoint", testOutbounderStartMalformedEndpoint)
	})
}
