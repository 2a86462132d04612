package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/enginerror/Shopping-Cart/pkg/errors"
)

// maxBodyBytes bounds request bodies; the largest is the checkout form.
const maxBodyBytes = 64 << 10

// decodeJSON decodes the request body into dst. An empty body is an error
// unless optional is set, in which case dst is left untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && optional:
		return nil
	case errors.Is(err, io.EOF):
		return apperrors.InvalidInput("request body is required")
	default:
		return apperrors.InvalidInput("invalid request body: " + err.Error())
	}
}
