package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"secops-service/internal/model"
)

func TestSanitizerMessageMasksPII(t *testing.T) {
	privacy := model.PrivacyConfig{MaskPII: true}
	var s Sanitizer

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "email", in: "login failed for alice@example.com", want: "login failed for [email]"},
		{name: "card", in: "charge declined for 4111 1111 1111 1111", want: "charge declined for [card]"},
		{name: "phone", in: "callback requested at +1 415 555 0100", want: "callback requested at [phone]"},
		{name: "clean", in: "disk usage at 91 percent", want: "disk usage at 91 percent"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, s.Message(tc.in, privacy))
		})
	}
}

func TestSanitizerMessagePassThroughWhenDisabled(t *testing.T) {
	var s Sanitizer
	msg := "login failed for alice@example.com"
	assert.Equal(t, msg, s.Message(msg, model.PrivacyConfig{MaskPII: false}))
}

func TestSanitizerMetadataRedactsAndHashes(t *testing.T) {
	privacy := model.PrivacyConfig{
		MaskPII:       true,
		ExcludeFields: []string{"password", "api_key"},
		HashUserIDs:   true,
	}
	var s Sanitizer

	in := map[string]interface{}{
		"password": "hunter2",
		"API_KEY":  "sk-123",
		"user_id":  "alice",
		"attempts": 3,
		"note":     "contact bob@example.com",
	}
	out := s.Metadata(in, privacy)

	assert.Equal(t, "[redacted]", out["password"])
	assert.Equal(t, "[redacted]", out["API_KEY"])
	assert.Equal(t, 3, out["attempts"])
	assert.Equal(t, "contact [email]", out["note"])

	hashed, ok := out["user_id"].(string)
	assert.True(t, ok)
	assert.True(t, strings.HasPrefix(hashed, "u_"))
	assert.NotEqual(t, "alice", hashed)

	// Original map is untouched.
	assert.Equal(t, "hunter2", in["password"])
}

func TestHashUserIDStable(t *testing.T) {
	a := HashUserID("alice")
	b := HashUserID("alice")
	c := HashUserID("bob")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 18) // "u_" + 16 hex chars
}
