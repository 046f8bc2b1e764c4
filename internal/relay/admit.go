package relay

import (
	"strconv"
	"strings"

	"github.com/mattjoyce/monitor-relay/internal/telegram"
)

// Admit reports whether update comes from the operator chat and, if so,
// returns its trimmed text ("" when the message has none). An empty
// operator identity admits nothing.
func Admit(update telegram.Update, operatorChatID string) (string, bool) {
	msg := update.Message
	if msg == nil || operatorChatID == "" {
		return "", false
	}
	if strconv.FormatInt(msg.Chat.ID, 10) != strings.TrimSpace(operatorChatID) {
		return "", false
	}
	if msg.Text == nil {
		return "", true
	}
	return strings.TrimSpace(*msg.Text), true
}
