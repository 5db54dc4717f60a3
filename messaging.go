package vigil

import "context"

// Messaging is the outbound chat surface. Notify broadcasts to the
// configured report channel; the chat-scoped methods answer a specific
// conversation. Implementations live under frontend/.
//
// Callers treat messaging as best-effort: failures are logged and
// swallowed, never allowed to break event processing.
type Messaging interface {
	// Notify sends text to the broadcast/report channel.
	Notify(ctx context.Context, text string) error

	// SendToChat sends text into a specific chat.
	SendToChat(ctx context.Context, chatID, text string) error

	// SendImageToChat uploads image bytes into a specific chat.
	SendImageToChat(ctx context.Context, chatID, filename string, image []byte) error

	// AddReaction attaches an emoji reaction to a message in a chat.
	AddReaction(ctx context.Context, chatID, messageID, emoji string) error
}

// NullMessaging discards everything. Used when no chat platform
// credentials are configured.
type NullMessaging struct{}

var _ Messaging = NullMessaging{}

func (NullMessaging) Notify(context.Context, string) error                          { return nil }
func (NullMessaging) SendToChat(context.Context, string, string) error              { return nil }
func (NullMessaging) SendImageToChat(context.Context, string, string, []byte) error { return nil }
func (NullMessaging) AddReaction(context.Context, string, string, string) error     { return nil }
