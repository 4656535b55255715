package ndjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactor_MasksByKeyName(t *testing.T) {
	r := NewRedactor()
	fields := map[string]any{
		"api_key":  "sk-live-1234567890",
		"password": "hunter2",
		"path":     "/tmp/a.txt",
	}
	out := r.RedactFields(fields)
	assert.Equal(t, "[REDACTED]", out["api_key"])
	assert.Equal(t, "[REDACTED]", out["password"])
	assert.Equal(t, "/tmp/a.txt", out["path"])
}

func TestRedactor_MasksSecretShapedValuesRegardlessOfKey(t *testing.T) {
	r := NewRedactor()
	assert.Equal(t, "[REDACTED]", r.RedactText("sk-abcdefghij1234"))
	assert.Equal(t, "[REDACTED]", r.RedactText("ghp_abcdefghij1234"))
	assert.Equal(t, "Authorization: [REDACTED]", r.RedactText("Authorization: Bearer abcdefghij1234"))
	assert.Equal(t, "hello world", r.RedactText("hello world"))
}

func TestRedactor_RecursesIntoNestedMaps(t *testing.T) {
	r := NewRedactor()
	fields := map[string]any{
		"headers": map[string]any{
			"Authorization": "Bearer sk-deadbeefdeadbeef",
		},
	}
	out := r.RedactFields(fields)
	headers := out["headers"].(map[string]any)
	assert.Equal(t, "[REDACTED]", headers["Authorization"])
}
