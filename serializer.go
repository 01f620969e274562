// SPDX-FileCopyrightText: 2025 The tracklight Authors
// SPDX-License-Identifier: Apache-2.0
package tracklight

import "encoding/json"

// Serializer turns an ordered batch of events into one transmittable
// payload.  Implementations own the wire format; the dispatcher treats the
// output as opaque bytes.
type Serializer interface {
	Serialize(events []Event) ([]byte, error)
}

// SerializerFunc adapts an ordinary function to the Serializer interface.
type SerializerFunc func(events []Event) ([]byte, error)

func (f SerializerFunc) Serialize(events []Event) ([]byte, error) { return f(events) }

// JSONSerializer is the default Serializer.  It wraps the batch in a JSON
// object so the collection endpoint can distinguish a batch envelope from a
// bare array.
type JSONSerializer struct{}

func (JSONSerializer) Serialize(events []Event) ([]byte, error) {
	if events == nil {
		events = []Event{}
	}

	envelope := struct {
		Events []Event `json:"events"`
	}{
		Events: events,
	}

	return json.Marshal(envelope)
}
