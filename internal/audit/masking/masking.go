package masking

import "strings"

const maskToken = "****"

// Metadata keys whose values are always masked.
var sensitiveKeys = map[string]struct{}{
	"license_key": {},
	"secret":      {},
	"signature":   {},
	"password":    {},
	"token":       {},
}

// MaskSecret redacts a secret while keeping the first key group and a short
// suffix, enough to correlate a license key in logs without revealing it.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	prefix, remainder := splitPrefix(trimmed)
	if len(remainder) <= 4 {
		return prefix + maskToken
	}

	return prefix + maskToken + remainder[len(remainder)-4:]
}

// MaskJSON returns a copy of the input with sensitive values masked.
func MaskJSON(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		if _, ok := sensitiveKeys[strings.ToLower(trimmedKey)]; ok {
			if s, isString := value.(string); isString {
				masked[trimmedKey] = MaskSecret(s)
				continue
			}
		}
		masked[trimmedKey] = maskNested(value)
	}

	if len(masked) == 0 {
		return nil
	}
	return masked
}

func maskNested(value any) any {
	switch cast := value.(type) {
	case map[string]any:
		return MaskJSON(cast)
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, maskNested(item))
		}
		return out
	default:
		return value
	}
}

func splitPrefix(value string) (string, string) {
	idx := strings.Index(value, "-")
	if idx <= 0 || idx == len(value)-1 {
		return "", value
	}
	return value[:idx+1], value[idx+1:]
}
