// Package intake parses order-intake request bodies. The storefront submits
// either raw JSON or a multipart form whose part named "data" carries the
// JSON text; some gateway-side proxies rewrite the declared content type, so
// detection goes by the multipart marker in the raw body, never by the
// Content-Type header alone.
package intake

import (
	"bytes"
	"strings"

	"github.com/go-faster/jx"
)

// Kind tags the detected body encoding.
type Kind uint8

const (
	// KindJSON is a raw JSON body.
	KindJSON Kind = iota + 1
	// KindMultipartJSON is a multipart body whose "data" part carries JSON.
	KindMultipartJSON
)

func (k Kind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindMultipartJSON:
		return "multipart-json"
	}
	return "unknown"
}

// Body is a successfully parsed intake body: the detected kind and the
// validated JSON payload.
type Body struct {
	Kind Kind
	JSON []byte
}

// ParseError describes a body that could not be parsed. Its message is safe
// to return to the client.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// multipartMarker is the header line that identifies a multipart form part.
const multipartMarker = "Content-Disposition: form-data"

// Detect reports the body kind implied by the raw bytes. Presence of the
// form-data marker wins over the declared content type.
func Detect(raw []byte, contentType string) Kind {
	if bytes.Contains(raw, []byte(multipartMarker)) {
		return KindMultipartJSON
	}
	return KindJSON
}

// Parse validates and extracts the JSON payload from a raw intake body.
func Parse(raw []byte, contentType string) (Body, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Body{}, &ParseError{Reason: "empty request body"}
	}

	switch Detect(raw, contentType) {
	case KindMultipartJSON:
		value, err := extractDataPart(raw)
		if err != nil {
			return Body{}, err
		}
		if !jx.Valid(value) {
			return Body{}, &ParseError{Reason: `invalid JSON in multipart part "data"`}
		}
		return Body{Kind: KindMultipartJSON, JSON: value}, nil

	default:
		if strings.HasPrefix(contentType, "multipart/") {
			// Declared multipart but no form-data part in sight: the body is
			// not something we can extract JSON from.
			return Body{}, &ParseError{Reason: "multipart body without a form-data part"}
		}
		value := bytes.TrimSpace(raw)
		if !jx.Valid(value) {
			return Body{}, &ParseError{Reason: "malformed JSON body"}
		}
		return Body{Kind: KindJSON, JSON: value}, nil
	}
}

// extractDataPart locates the multipart part named "data" and returns the
// text between the part's blank-line separator and the next boundary marker.
func extractDataPart(raw []byte) ([]byte, error) {
	nameIdx := indexPartName(raw, "data")
	if nameIdx < 0 {
		return nil, &ParseError{Reason: `multipart part "data" not found`}
	}
	rest := raw[nameIdx:]

	sepIdx := bytes.Index(rest, []byte("\r\n\r\n"))
	sepLen := 4
	if sepIdx < 0 {
		sepIdx = bytes.Index(rest, []byte("\n\n"))
		sepLen = 2
	}
	if sepIdx < 0 {
		return nil, &ParseError{Reason: "malformed multipart part: missing blank-line separator"}
	}
	body := rest[sepIdx+sepLen:]

	end := bytes.Index(body, []byte("\n--"))
	if end < 0 {
		return nil, &ParseError{Reason: "malformed multipart part: missing closing boundary"}
	}

	value := bytes.TrimSpace(body[:end])
	if len(value) == 0 {
		return nil, &ParseError{Reason: `multipart part "data" is empty`}
	}
	return value, nil
}

// indexPartName finds a `name="<name>"` attribute whose name matches exactly.
// The match is anchored on both sides: it must not be the tail of a longer
// attribute (filename="data") and the closing quote must be followed by an
// attribute separator, a line break, or the end of input, so longer part
// names sharing the prefix do not match.
func indexPartName(raw []byte, name string) int {
	marker := []byte(`name="` + name + `"`)
	for off := 0; ; {
		i := bytes.Index(raw[off:], marker)
		if i < 0 {
			return -1
		}
		idx := off + i
		end := idx + len(marker)

		before := byte(';')
		if idx > 0 {
			before = raw[idx-1]
		}
		after := byte(';')
		if end < len(raw) {
			after = raw[end]
		}

		if (before == ';' || before == ' ' || before == '\t') &&
			(after == ';' || after == '\r' || after == '\n') {
			return idx
		}
		off = end
	}
}
