package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/model"
)

type errorBody struct {
	Message string      `json:"message"`
	Code    apperr.Code `json:"code"`
}

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error body with the status that belongs to code.
func jsonError(w http.ResponseWriter, code apperr.Code, message string) {
	jsonResponse(w, code.HTTPStatus(), errorBody{Message: message, Code: code})
}

// writeError reports err to the client. Domain errors are passed through;
// anything else is logged and replaced with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)
	if e.Code == apperr.CodeInternal {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	jsonError(w, e.Code, e.Message)
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

func invalidBody(w http.ResponseWriter) {
	jsonError(w, apperr.CodeInvalidArgument, "invalid request body")
}

// pathID parses a numeric chi URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid("invalid " + name)
	}
	return id, nil
}

// queryID parses an optional numeric query parameter; absent means zero.
func queryID(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, apperr.Invalid("invalid " + name)
	}
	return id, nil
}

// emptyIfNil keeps list endpoints returning [] rather than null.
func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// field returns the first of names present in a JSON body. Older clients
// send camelCase, newer ones snake_case.
func field(body []byte, names ...string) gjson.Result {
	for _, name := range names {
		if res := gjson.GetBytes(body, name); res.Exists() && res.Type != gjson.Null {
			return res
		}
	}
	return gjson.Result{}
}

// decimalField reads an optional decimal given either as a JSON number or a
// numeric string.
func decimalField(body []byte, names ...string) (*decimal.Decimal, error) {
	res := field(body, names...)
	var raw string
	switch res.Type {
	case gjson.Null:
		return nil, nil
	case gjson.Number:
		raw = res.Raw
	case gjson.String:
		if res.Str == "" {
			return nil, nil
		}
		raw = res.Str
	default:
		return nil, apperr.Invalid(names[0] + " must be a number")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, apperr.Invalid(names[0] + " must be a number")
	}
	if !model.DecimalInBounds(d) {
		return nil, apperr.Invalid(fmt.Sprintf("%s is out of range (at most %d decimal places)", names[0], model.MaxScale))
	}
	return &d, nil
}

// requiredDecimal is decimalField for fields that must be present.
func requiredDecimal(body []byte, names ...string) (decimal.Decimal, error) {
	d, err := decimalField(body, names...)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if d == nil {
		return decimal.Decimal{}, apperr.Invalid(names[0] + " required")
	}
	return *d, nil
}

// idField reads an optional positive ID.
func idField(body []byte, names ...string) *int64 {
	res := field(body, names...)
	if !res.Exists() {
		return nil
	}
	id := res.Int()
	if id <= 0 {
		return nil
	}
	return &id
}

// maxJSONBody caps bodies read whole for loose field access.
const maxJSONBody = 1 << 20

// readBody reads a JSON body for loose field access.
func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody+1))
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	if len(body) > maxJSONBody {
		return nil, apperr.Invalid("request body too large")
	}
	if !gjson.ValidBytes(body) {
		return nil, apperr.Invalid("invalid request body")
	}
	return body, nil
}
