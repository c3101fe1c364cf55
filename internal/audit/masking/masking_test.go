package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "AB12CD34-****OP56", MaskSecret("AB12CD34-EF56GH78-IJ90KL12-MN34OP56"))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "****defg", MaskSecret("abcdefg"))
	assert.Equal(t, "", MaskSecret("  "))
}

func TestMaskJSONOnlyTouchesSensitiveKeys(t *testing.T) {
	out := MaskJSON(map[string]any{
		"license_key": "AB12CD34-EF56GH78-IJ90KL12-MN34OP56",
		"domain":      "example.com",
		"nested": map[string]any{
			"token": "tok-abcdef123",
			"count": 3,
		},
		"": "dropped",
	})

	assert.Equal(t, "AB12CD34-****OP56", out["license_key"])
	assert.Equal(t, "example.com", out["domain"])
	nested := out["nested"].(map[string]any)
	assert.Equal(t, "tok-****f123", nested["token"])
	assert.Equal(t, 3, nested["count"])
	assert.NotContains(t, out, "")
}
