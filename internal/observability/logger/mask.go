package logger

import "strings"

// Field names that never reach logs or audit metadata in the clear. Signer
// link tokens are credentials: anyone holding one can act as the signer.
var sensitiveKeys = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"key_hash",
	"authorization",
	"signer_link",
}

// MaskAuthorization masks a bearer credential, preserving the scheme.
func MaskAuthorization(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if scheme, cred, ok := strings.Cut(value, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return "Bearer " + maskTail(strings.TrimSpace(cred))
	}
	return maskTail(value)
}

// MaskJSON deep-copies a metadata map, masking values under sensitive keys.
func MaskJSON(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		switch {
		case isSensitiveKey(key):
			out[key] = maskAny(value)
		default:
			out[key] = maskNested(value)
		}
	}
	return out
}

func maskNested(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return MaskJSON(typed)
	case []any:
		items := make([]any, 0, len(typed))
		for _, entry := range typed {
			items = append(items, maskNested(entry))
		}
		return items
	default:
		return value
	}
}

func maskAny(value any) any {
	switch typed := value.(type) {
	case string:
		return maskTail(typed)
	case []byte:
		return maskTail(string(typed))
	default:
		return "****"
	}
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, needle := range sensitiveKeys {
		if strings.Contains(key, needle) {
			return true
		}
	}
	return false
}

// maskTail keeps the last 4 characters so operators can correlate keys
// without ever logging a usable credential.
func maskTail(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****" + value
	}
	return "****" + value[len(value)-4:]
}
