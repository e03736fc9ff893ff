package eventstore

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// NewJSONEncoder constructs a json encoder with the provided event types
// registered. Only registered types can be decoded back from the log.
func NewJSONEncoder(evts ...any) *JSONEncoder {
	enc := JSONEncoder{
		types: make(map[string]reflect.Type),
	}

	for _, evt := range evts {
		t := reflect.TypeOf(evt)
		enc.types[t.Name()] = t
	}

	return &enc
}

// JSONEncoder provides the default json Encoder implementation
// It marshals events to/from json and stores the type name alongside
type JSONEncoder struct {
	types map[string]reflect.Type
}

// Encode marshals the incoming event to its json representation
func (e *JSONEncoder) Encode(evtData any) (*EncodedEvt, error) {
	data, err := json.Marshal(evtData)
	if err != nil {
		return nil, err
	}

	return &EncodedEvt{
		Type: reflect.TypeOf(evtData).Name(),
		Data: string(data),
	}, nil
}

// Decode unmarshals the incoming event to its corresponding go type
func (e *JSONEncoder) Decode(evt *EncodedEvt) (any, error) {
	t, ok := e.types[evt.Type]
	if !ok {
		return nil, fmt.Errorf("event type not registered with encoder: %s", evt.Type)
	}

	v := reflect.New(t)

	err := json.Unmarshal([]byte(evt.Data), v.Interface())
	if err != nil {
		return nil, err
	}

	return v.Elem().Interface(), nil
}
