package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/odyssey-erp/facilitydesk/internal/listing"
)

// Envelope kinds.
const (
	EnvelopeArray  = "array"
	EnvelopeObject = "object"
)

// Envelope declares the shape of a list response. Responses that do not match are
// rejected instead of guessed at.
type Envelope struct {
	Kind string
	// ItemsKey is the dotted path of the items array inside an object envelope.
	ItemsKey string
	// TotalPagesKey optionally points at an authoritative page count.
	TotalPagesKey string
}

// Decode parses a list response body.
func (e Envelope) Decode(resource string, body []byte) (listing.Batch[listing.Record], error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return listing.Batch[listing.Record]{}, &listing.FetchError{Resource: resource, Message: "malformed response", Err: err}
	}

	switch e.Kind {
	case "", EnvelopeArray:
		items, err := toRecords(resource, raw)
		if err != nil {
			return listing.Batch[listing.Record]{}, err
		}
		return listing.Batch[listing.Record]{Items: items}, nil
	case EnvelopeObject:
		obj, ok := raw.(map[string]any)
		if !ok {
			return listing.Batch[listing.Record]{}, &listing.FetchError{Resource: resource, Message: "expected a JSON object"}
		}
		doc := listing.Record(obj)
		value := doc.Lookup(e.ItemsKey)
		if value == nil {
			return listing.Batch[listing.Record]{}, &listing.FetchError{Resource: resource, Message: fmt.Sprintf("response has no %q", e.ItemsKey)}
		}
		items, err := toRecords(resource, value)
		if err != nil {
			return listing.Batch[listing.Record]{}, err
		}
		batch := listing.Batch[listing.Record]{Items: items}
		if e.TotalPagesKey != "" {
			if n, ok := toInt(doc.Lookup(e.TotalPagesKey)); ok && n > 0 {
				batch.TotalPages = n
			}
		}
		return batch, nil
	default:
		return listing.Batch[listing.Record]{}, fmt.Errorf("backend: unknown envelope %q", e.Kind)
	}
}

func toRecords(resource string, v any) ([]listing.Record, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, &listing.FetchError{Resource: resource, Message: "expected a JSON array of items"}
	}
	out := make([]listing.Record, 0, len(arr))
	for i, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, &listing.FetchError{Resource: resource, Message: fmt.Sprintf("item %d is not an object", i)}
		}
		out = append(out, listing.Record(obj))
	}
	return out, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := strconv.Atoi(n.String())
		return i, err == nil
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

// RecordSource lists one resource through a Client.
type RecordSource struct {
	client   *Client
	envelope Envelope
	params   map[string]listing.Param
}

// NewRecordSource builds a source decoding responses with envelope and sending filters
// under params.
func NewRecordSource(client *Client, envelope Envelope, params map[string]listing.Param) *RecordSource {
	return &RecordSource{client: client, envelope: envelope, params: params}
}

// FetchPage implements listing.Source.
func (s *RecordSource) FetchPage(ctx context.Context, resource string, q listing.Query) (listing.Batch[listing.Record], error) {
	body, err := s.client.Get(ctx, resource, q.Values(s.params))
	if err != nil {
		return listing.Batch[listing.Record]{}, err
	}
	return s.envelope.Decode(resource, body)
}

// Params returns the filter parameter names, used to derive cache keys.
func (s *RecordSource) Params() map[string]listing.Param {
	return s.params
}
