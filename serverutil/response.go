package serverutil

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dpup/libtask/errors"
	"github.com/dpup/libtask/logging"
)

// ErrorResponse is the JSON body written for failed HTTP requests. It mirrors
// the shape of a gRPC status so both transports report errors alike.
type ErrorResponse struct {
	Code     int32  `json:"code"`
	CodeName string `json:"codeName"`
	Message  string `json:"message"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Errorw(ctx, "serverutil: failed to encode response", "error", err)
	}
}

// WriteError renders err as an ErrorResponse. Only the public message is sent
// to the client. The full error is tracked on the request logger.
func WriteError(ctx context.Context, w http.ResponseWriter, err error) {
	code := errors.Code(err)
	status := errors.HTTPStatusCode(err)

	logging.Track(ctx, "error.message", err.Error())
	logging.Track(ctx, "error.code", code.String())

	WriteJSON(ctx, w, status, ErrorResponse{
		Code:     int32(code),
		CodeName: code.String(),
		Message:  errors.PublicMessage(err),
	})
}
