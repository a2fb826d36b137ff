package router

import (
	"context"
	"net/http"

	"github.com/Suhaibinator/SDispatch/pkg/common"
)

// NewGenericHandler returns a terminal handler that decodes the request body
// with codec, calls handler and encodes its result. Decoding failures are
// reported as a 400 HTTPError; handler errors are returned unchanged.
//
// This is a standalone function rather than a method because Go methods
// cannot have type parameters.
func NewGenericHandler[T any, U any](codec Codec[T, U], handler GenericHandler[T, U]) common.Handler {
	return common.HandlerFunc(func(ctx context.Context, req common.Request, resp common.Response) error {
		data, err := codec.Decode(req)
		if err != nil {
			return WrapHTTPError(http.StatusBadRequest, "Failed to decode request", err)
		}

		result, err := handler(ctx, req, data)
		if err != nil {
			return err
		}

		if err := codec.Encode(resp, result); err != nil {
			return WrapHTTPError(http.StatusInternalServerError, "Failed to encode response", err)
		}
		return nil
	})
}
