package pharos

import (
	"strings"
	"unicode/utf8"

	"github.com/coder/websocket"
)

// Status is a WebSocket close status code as defined in RFC 6455.
type Status = websocket.StatusCode

const (
	StatusNormalClosure   Status = websocket.StatusNormalClosure   // 1000
	StatusGoingAway       Status = websocket.StatusGoingAway       // 1001
	StatusProtocolError   Status = websocket.StatusProtocolError   // 1002
	StatusUnsupportedData Status = websocket.StatusUnsupportedData // 1003
	StatusPolicyViolation Status = websocket.StatusPolicyViolation // 1008
	StatusMessageTooBig   Status = websocket.StatusMessageTooBig   // 1009
	StatusInternalError   Status = websocket.StatusInternalError   // 1011
	StatusTryAgainLater   Status = websocket.StatusTryAgainLater   // 1013
)

// MaxCloseReason is the longest close reason, in bytes, that fits in a
// control frame.
const MaxCloseReason = 123

// CloseReason makes reason usable in a close frame: valid UTF-8 and at most
// MaxCloseReason bytes, cut on a rune boundary.
func CloseReason(reason string) string {
	reason = strings.ToValidUTF8(reason, "")
	if len(reason) <= MaxCloseReason {
		return reason
	}
	cut := MaxCloseReason
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}
