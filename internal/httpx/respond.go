package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/orders"
)

var (
	errUnauthenticated = errors.New("missing or unknown X-User-ID")
	errForbidden       = errors.New("forbidden")
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "BAD_REQUEST", Message: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return false
	}
	return true
}

// writeError maps domain failures to HTTP statuses. Anything unclassified is
// logged and hidden behind a generic 500.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, kind := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		a.log.WithError(err).WithField("path", r.URL.Path).Error("unhandled error")
		msg = "internal error"
	}
	writeJSON(w, code, errorBody{Error: kind, Message: msg})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized, "UNAUTHENTICATED"
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, catalog.ErrInvalidProduct),
		errors.Is(err, catalog.ErrNegativePrice),
		errors.Is(err, catalog.ErrPricePrecision),
		errors.Is(err, catalog.ErrNegativeStock):
		return http.StatusBadRequest, orders.KindInvalid.String()
	}

	k := orders.KindOf(err)
	switch k {
	case orders.KindNotFound:
		return http.StatusNotFound, k.String()
	case orders.KindInsufficientStock, orders.KindUnavailable, orders.KindIllegalState, orders.KindConflict:
		return http.StatusConflict, k.String()
	case orders.KindEmptyCart:
		return http.StatusUnprocessableEntity, k.String()
	case orders.KindInvalid:
		return http.StatusBadRequest, k.String()
	case orders.KindTxFailed:
		return http.StatusServiceUnavailable, k.String()
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
