package news

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is the outer shape of a list response. The accepted variants are
// BareArray, DataField, NewsField and SingleObject.
type Envelope interface {
	envelope()
}

// BareArray is a response that is itself a JSON array.
type BareArray struct {
	Items []json.RawMessage
}

// DataField is an object carrying the records in "data".
type DataField struct {
	Items []json.RawMessage
}

// NewsField is an object carrying the records in "news".
type NewsField struct {
	Items []json.RawMessage
}

// SingleObject is any other object, read as a one-record collection.
type SingleObject struct {
	Item json.RawMessage
}

func (BareArray) envelope()    {}
func (DataField) envelope()    {}
func (NewsField) envelope()    {}
func (SingleObject) envelope() {}

// DecodeEnvelope classifies a response body.
func DecodeEnvelope(body []byte) (Envelope, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, Malformed(errors.New("empty body"))
	}

	switch body[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, Malformed(err)
		}
		return BareArray{Items: items}, nil
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, Malformed(err)
		}
		if items, ok := arrayField(fields, "data"); ok {
			return DataField{Items: items}, nil
		}
		if items, ok := arrayField(fields, "news"); ok {
			return NewsField{Items: items}, nil
		}
		return SingleObject{Item: json.RawMessage(body)}, nil
	default:
		return nil, Malformed(fmt.Errorf("unexpected JSON value starting with %q", body[0]))
	}
}

// Elements returns the raw records held by an envelope.
func Elements(env Envelope) ([]json.RawMessage, error) {
	switch e := env.(type) {
	case BareArray:
		return e.Items, nil
	case DataField:
		return e.Items, nil
	case NewsField:
		return e.Items, nil
	case SingleObject:
		return []json.RawMessage{e.Item}, nil
	default:
		return nil, Malformed(fmt.Errorf("unknown envelope %T", env))
	}
}

// DecodeElements is DecodeEnvelope followed by Elements.
func DecodeElements(body []byte) ([]json.RawMessage, error) {
	env, err := DecodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	return Elements(env)
}

func arrayField(fields map[string]json.RawMessage, key string) ([]json.RawMessage, bool) {
	raw, ok := fields[key]
	if !ok {
		return nil, false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}
