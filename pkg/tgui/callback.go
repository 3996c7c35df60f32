package tgui

import (
	"fmt"
	"strings"
)

// Data formats inline callback data as "plugin:action:payload".
// Payload is kept as-is (no escaping).
func Data(plugin, action, payload string) string {
	plugin = strings.TrimSpace(plugin)
	action = strings.TrimSpace(action)
	if payload == "" {
		return plugin + ":" + action
	}
	return plugin + ":" + action + ":" + payload
}

// CheckedData is Data with Telegram's size limit enforced.
func CheckedData(plugin, action, payload string) (string, error) {
	d := Data(plugin, action, payload)
	if len(d) > MaxCallbackDataLen {
		return "", fmt.Errorf("%w: %d bytes", ErrCallbackDataTooLong, len(d))
	}
	return d, nil
}

// ParseData splits callback data produced by Data. ok is false when there
// is no action part.
func ParseData(data string) (plugin, action, payload string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(data), ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	if len(parts) == 3 {
		payload = parts[2]
	}
	return parts[0], parts[1], payload, true
}
