package binder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// DefaultMaxJSONSize caps JSON bodies at 1 MB.
const DefaultMaxJSONSize = 1 << 20

// JSON decodes an application/json body into v. An empty body leaves v
// untouched, so endpoints with only optional fields accept bodiless requests.
func JSON() func(r *http.Request, v any) error {
	return JSONWithLimit(DefaultMaxJSONSize)
}

func JSONWithLimit(maxBytes int64) func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
		if err != nil {
			return fmt.Errorf("%w: read body: %v", ErrFailedToParseJSON, err)
		}
		if int64(len(body)) > maxBytes {
			return fmt.Errorf("%w: max %d bytes", ErrBodyTooLarge, maxBytes)
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return nil
		}

		ct := r.Header.Get("Content-Type")
		if ct == "" {
			return fmt.Errorf("%w: expected application/json", ErrMissingContentType)
		}
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			return fmt.Errorf("%w: got %s, expected application/json", ErrUnsupportedMediaType, ct)
		}

		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("%w: %v", ErrFailedToParseJSON, err)
		}
		if err := dec.Decode(&json.RawMessage{}); !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: unexpected data after JSON object", ErrFailedToParseJSON)
		}
		return nil
	}
}
