package transport

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/relq/internal/ir"
)

// response is the body of a fetch reply on every transport.
type response struct {
	Data      []ir.Record `json:"data"`
	Total     *int        `json:"total"`
	Error     string      `json:"error,omitempty"`
	Temporary bool        `json:"temporary,omitempty"`
}

// natsRequest is the body of a NATS fetch request.
type natsRequest struct {
	Params ir.ReferenceParams `json:"params"`
}

func decodeResponse(data []byte) (response, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var resp response
	if err := dec.Decode(&resp); err != nil {
		return response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

func (r response) result() (ir.FetchResult, error) {
	if r.Total == nil {
		return ir.FetchResult{}, fmt.Errorf("response has no total")
	}
	data := r.Data
	if data == nil {
		data = []ir.Record{}
	}
	return ir.FetchResult{Data: data, Total: *r.Total}, nil
}

func resultResponse(res ir.FetchResult) response {
	total := res.Total
	data := res.Data
	if data == nil {
		data = []ir.Record{}
	}
	return response{Data: data, Total: &total}
}

func errorResponse(err error) response {
	return response{Error: err.Error(), Temporary: IsTemporary(err)}
}
