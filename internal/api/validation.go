package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/djlord-it/easybooking/internal/domain"
	"github.com/djlord-it/easybooking/internal/validation"
)

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

const fieldCancelledBy = "cancelled_by"

func (req AssignRequest) validate() error {
	if req.TranslatorID == nil {
		return domain.ValidationErrors{{Field: validation.FieldTranslatorID, Message: "is required"}}
	}
	return nil
}

func (req CancelRequest) validate() error {
	if req.CancelledBy == nil {
		return domain.ValidationErrors{{Field: fieldCancelledBy, Message: "is required"}}
	}
	return nil
}

// pathID parses the {id} URL parameter. On failure it writes a 400 and
// returns false.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// decodeJSON reads a size-limited JSON body into v. An empty body leaves v
// untouched. On failure it writes the response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		case errors.Is(err, io.EOF):
			return true
		default:
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return false
		}
	}
	return true
}

// decodePayload reads a free-form body for the validator.
func decodePayload(w http.ResponseWriter, r *http.Request) (validation.Payload, bool) {
	var payload validation.Payload
	if !decodeJSON(w, r, &payload) {
		return nil, false
	}
	if payload == nil {
		payload = validation.Payload{}
	}
	return payload, true
}
