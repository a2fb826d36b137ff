// Package codec provides encoding and decoding functionality for different data formats.
package codec

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/Suhaibinator/SDispatch/pkg/common"
)

// JSONCodec is a codec that uses JSON for marshaling and unmarshaling.
type JSONCodec[T any, U any] struct {
	// DisallowUnknownFields rejects request bodies with fields T does not have.
	DisallowUnknownFields bool
}

// Decode decodes the request body into a value of type T.
func (c *JSONCodec[T, U]) Decode(req common.Request) (T, error) {
	var data T

	body := req.Body()
	defer body.Close()

	dec := json.NewDecoder(body)
	if c.DisallowUnknownFields {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&data); err != nil && err != io.EOF {
		return data, err
	}
	return data, nil
}

// Encode marshals resp to JSON and writes it with the appropriate content type.
func (c *JSONCodec[T, U]) Encode(w http.ResponseWriter, resp U) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(body)
	return err
}

// NewJSONCodec creates a new JSONCodec instance for the specified types.
// T represents the request type and U represents the response type.
func NewJSONCodec[T any, U any]() *JSONCodec[T, U] {
	return &JSONCodec[T, U]{}
}
