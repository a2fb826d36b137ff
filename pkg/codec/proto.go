package codec

import (
	"errors"
	"io"
	"net/http"
	"reflect"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"google.golang.org/protobuf/proto"
)

// ErrNotPointerMessage is returned when the request type of a ProtoCodec is
// not a pointer to a generated message struct.
var ErrNotPointerMessage = errors.New("sdispatch(codec): request type must be a pointer to a proto message")

// ProtoCodec is a codec that uses Protocol Buffers for marshaling and unmarshaling.
// T and U are generated message pointer types such as *pb.User.
type ProtoCodec[T proto.Message, U proto.Message] struct{}

// Decode reads the request body and unmarshals it into a new T.
func (c *ProtoCodec[T, U]) Decode(req common.Request) (T, error) {
	var zero T

	typ := reflect.TypeOf(zero)
	if typ == nil || typ.Kind() != reflect.Pointer {
		return zero, ErrNotPointerMessage
	}
	msg := reflect.New(typ.Elem()).Interface().(T)

	body := req.Body()
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return zero, err
	}
	if err := proto.Unmarshal(data, msg); err != nil {
		return zero, err
	}
	return msg, nil
}

// Encode marshals resp and writes it with the protobuf content type.
func (c *ProtoCodec[T, U]) Encode(w http.ResponseWriter, resp U) error {
	body, err := proto.Marshal(resp)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/x-protobuf")
	_, err = w.Write(body)
	return err
}

// NewProtoCodec creates a new ProtoCodec instance for the specified types.
func NewProtoCodec[T proto.Message, U proto.Message]() *ProtoCodec[T, U] {
	return &ProtoCodec[T, U]{}
}
