package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spaolacci/murmur3"

	"secops-service/internal/model"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s().-]{7,14}\d`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)
)

// userIDFields are metadata keys treated as user identifiers for hashing.
var userIDFields = map[string]bool{
	"user_id":    true,
	"userid":     true,
	"uid":        true,
	"account_id": true,
}

// Sanitizer applies the privacy section of the logging configuration: PII
// masking in messages, field redaction and user-id hashing in metadata.
type Sanitizer struct{}

// Message masks emails, phone numbers and card numbers when maskPII is on.
func (Sanitizer) Message(msg string, privacy model.PrivacyConfig) string {
	if !privacy.MaskPII {
		return msg
	}
	msg = emailPattern.ReplaceAllString(msg, "[email]")
	msg = cardPattern.ReplaceAllString(msg, "[card]")
	msg = phonePattern.ReplaceAllString(msg, "[phone]")
	return msg
}

// Metadata redacts configured fields and hashes user-id fields in place on a
// copy of the map. The original map is never mutated.
func (s Sanitizer) Metadata(meta map[string]interface{}, privacy model.PrivacyConfig) map[string]interface{} {
	if meta == nil {
		return nil
	}
	out := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		lower := strings.ToLower(k)
		if excluded(lower, privacy.ExcludeFields) {
			out[k] = "[redacted]"
			continue
		}
		if privacy.HashUserIDs && userIDFields[lower] {
			out[k] = HashUserID(fmt.Sprintf("%v", v))
			continue
		}
		if str, ok := v.(string); ok && privacy.MaskPII {
			out[k] = s.Message(str, privacy)
			continue
		}
		out[k] = v
	}
	return out
}

// HashUserID produces a stable, non-reversible token for a user identifier.
func HashUserID(id string) string {
	h := murmur3.Sum64([]byte(id))
	return fmt.Sprintf("u_%016x", h)
}

func excluded(field string, excludeFields []string) bool {
	for _, ex := range excludeFields {
		if strings.EqualFold(field, ex) {
			return true
		}
	}
	return false
}
