package heating

import (
	"strings"

	"roomheat/internal/models"
)

// Origin tags reported by Shelly TRV firmware on setpoint changes.
// "button" is the physical dial, "WS" the wireless app; both mean a guest
// touched the valve. "mqtt" and "http" are our own (or another
// automation's) commands echoing back.
const (
	tagButton = "button"
	tagApp    = "ws"
	tagMQTT   = "mqtt"
	tagHTTP   = "http"
)

// ClassifySource labels an inbound setpoint change by its origin tag.
// A missing or unrecognized tag (older firmware) classifies as unknown,
// which downstream treats as "do not override" in favor of the guest.
func ClassifySource(tag string) models.SourceClass {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case tagButton, tagApp:
		return models.SourceGuest
	case tagMQTT, tagHTTP:
		return models.SourceAutomation
	default:
		return models.SourceUnknown
	}
}
