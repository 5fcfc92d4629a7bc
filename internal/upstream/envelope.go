package upstream

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Unwrap strips a single response envelope. Collaborators answer either with
// the bare payload or with the payload nested under one of keys; the first key
// present in a JSON object wins. Anything else is returned unchanged.
func Unwrap(raw []byte, keys ...string) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return json.RawMessage(trimmed)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return json.RawMessage(trimmed)
	}
	for _, key := range keys {
		if inner, ok := obj[key]; ok && !isNull(inner) {
			return inner
		}
	}
	return json.RawMessage(trimmed)
}

// MessageFrom extracts a human readable message from an error body.
func MessageFrom(body []byte) string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(truncate(body, 200)))
	}
	for _, key := range []string{"message", "detail", "error", "errors"} {
		raw, ok := payload[key]
		if !ok || isNull(raw) {
			continue
		}
		if msg := textOf(raw); msg != "" {
			return msg
		}
	}
	return ""
}

func textOf(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if text := textOf(item); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "; ")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		if msg, ok := obj["message"]; ok {
			return textOf(msg)
		}
		if code, ok := obj["code"]; ok {
			return textOf(code)
		}
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
