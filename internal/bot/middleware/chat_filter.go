// Package middleware provides the layers every bot request passes through.
package middleware

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot/models"
	"github.com/graffic/quotebot/internal/bot/handler"
)

// ChatLeaver makes the bot leave a chat
type ChatLeaver interface {
	LeaveChat(ctx context.Context, chatID int64) error
}

// ChatFilter drops requests from chats outside allowedChatIDs.
// If allowedChatIDs is empty, all chats are allowed.
// If leaver is not nil, the bot leaves unauthorized chats.
func ChatFilter(allowedChatIDs []int64, leaver ChatLeaver, logger *slog.Logger) handler.Middleware {
	allowed := make(map[int64]bool, len(allowedChatIDs))
	for _, id := range allowedChatIDs {
		allowed[id] = true
	}
	allowAll := len(allowedChatIDs) == 0

	logger.Info("Chat filter", "allowAll", allowAll, "autoLeave", leaver != nil, "chatIds", allowedChatIDs)

	return func(next handler.Func) handler.Func {
		return func(ctx context.Context, req *handler.Request) (*handler.Result, error) {
			chatID := extractChatID(req.Update)
			if chatID == 0 {
				return nil, nil
			}

			if !allowAll && !allowed[chatID] {
				logger.Info("ignoring update from unauthorized chat", "chat_id", chatID)

				if leaver != nil {
					logger.Info("leaving unauthorized chat", "chat_id", chatID)
					if err := leaver.LeaveChat(ctx, chatID); err != nil {
						logger.Error("failed to leave chat", "chat_id", chatID, "error", err)
					}
				}
				return nil, nil
			}

			return next(ctx, req)
		}
	}
}

// extractChatID extracts the chat ID from an update.
// Returns 0 if no chat ID can be determined.
func extractChatID(update *models.Update) int64 {
	if update == nil {
		return 0
	}

	switch {
	case update.Message != nil:
		return update.Message.Chat.ID
	case update.EditedMessage != nil:
		return update.EditedMessage.Chat.ID
	case update.CallbackQuery != nil && update.CallbackQuery.Message.Message != nil:
		return update.CallbackQuery.Message.Message.Chat.ID
	case update.MyChatMember != nil:
		return update.MyChatMember.Chat.ID
	case update.ChatMember != nil:
		return update.ChatMember.Chat.ID
	default:
		return 0
	}
}
