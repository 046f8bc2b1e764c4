package telegram

import "context"

// ChatNotifier sends HTML-formatted messages to one fixed chat.
type ChatNotifier struct {
	client *Client
	chatID string
}

// NewChatNotifier returns a notifier bound to chatID.
func NewChatNotifier(client *Client, chatID string) *ChatNotifier {
	return &ChatNotifier{client: client, chatID: chatID}
}

// Notify sends text to the bound chat with HTML parse mode.
func (n *ChatNotifier) Notify(ctx context.Context, text string) error {
	return n.client.SendMessage(ctx, n.chatID, text, "HTML")
}
