package jobs

import (
	"encoding/hex"
	"strings"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/automation/params"
)

// decodeMessage returns the message bytes. With messageFormat "hex" the
// message is a hex string such as "0A FF 10"; the default is raw text.
func decodeMessage(p params.Map) ([]byte, error) {
	msg := params.StringOr(p, "message", "")
	switch strings.ToLower(params.StringOr(p, "messageFormat", "text")) {
	case "text":
		return []byte(msg), nil
	case "hex":
		b, err := hex.DecodeString(strings.NewReplacer(" ", "", ":", "").Replace(msg))
		if err != nil {
			return nil, automation.NewValidationError("message is not valid hex: %v", err)
		}
		return b, nil
	default:
		return nil, automation.NewValidationError("messageFormat must be text or hex")
	}
}
