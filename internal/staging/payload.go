package staging

import (
	"encoding/base64"
	"errors"
	"strings"
)

var errInvalidPayload = errors.New("staging: invalid image payload")

// DecodeImagePayload accepts a data URI ("<meta>,<base64>") or bare base64.
// Whitespace anywhere in the payload is ignored and padding is optional, but
// any other character outside the standard alphabet is rejected, as is a
// payload that decodes to nothing.
func DecodeImagePayload(value string) ([]byte, error) {
	payload := value
	if idx := strings.IndexByte(payload, ','); idx >= 0 {
		payload = payload[idx+1:]
	}
	payload = strings.Join(strings.Fields(payload), "")
	if payload == "" {
		return nil, errInvalidPayload
	}

	body := strings.TrimRight(payload, "=")
	if body == "" || len(payload)-len(body) > 2 {
		return nil, errInvalidPayload
	}
	for i := 0; i < len(body); i++ {
		if !isBase64Char(body[i]) {
			return nil, errInvalidPayload
		}
	}

	data, err := base64.RawStdEncoding.DecodeString(body)
	if err != nil || len(data) == 0 {
		return nil, errInvalidPayload
	}
	return data, nil
}

// EncodeDataURI is the inverse of DecodeImagePayload.
func EncodeDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func isBase64Char(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '+', c == '/':
		return true
	}
	return false
}
