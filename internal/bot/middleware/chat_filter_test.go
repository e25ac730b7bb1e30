package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/graffic/quotebot/internal/bot/handler"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLeaver struct {
	left []int64
	err  error
}

func (f *fakeLeaver) LeaveChat(_ context.Context, chatID int64) error {
	f.left = append(f.left, chatID)
	return f.err
}

func runFilter(t *testing.T, allowed []int64, leaver ChatLeaver, update *models.Update) bool {
	t.Helper()
	called := false
	next := func(ctx context.Context, req *handler.Request) (*handler.Result, error) {
		called = true
		return nil, nil
	}

	h := ChatFilter(allowed, leaver, discardLogger())(next)
	if _, err := h(context.Background(), &handler.Request{Update: update}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return called
}

func messageIn(chatID int64) *models.Update {
	return &models.Update{
		Message: &models.Message{
			Chat: models.Chat{ID: chatID},
		},
	}
}

func TestChatFilter_AllowedChat(t *testing.T) {
	if !runFilter(t, []int64{123456789, -1009876543210}, nil, messageIn(123456789)) {
		t.Error("expected handler to be called for allowed chat")
	}
}

func TestChatFilter_DeniedChat(t *testing.T) {
	if runFilter(t, []int64{123456789}, nil, messageIn(999999999)) {
		t.Error("expected handler NOT to be called for denied chat")
	}
}

func TestChatFilter_AllowAll(t *testing.T) {
	if !runFilter(t, []int64{}, nil, messageIn(555)) {
		t.Error("expected handler to be called when no whitelist is configured")
	}
}

func TestChatFilter_NilUpdate(t *testing.T) {
	if runFilter(t, []int64{}, nil, nil) {
		t.Error("expected handler NOT to be called for nil update")
	}
}

func TestChatFilter_EditedMessage(t *testing.T) {
	update := &models.Update{
		EditedMessage: &models.Message{
			Chat: models.Chat{ID: 123456789},
		},
	}
	if !runFilter(t, []int64{123456789}, nil, update) {
		t.Error("expected handler to be called for edited message in allowed chat")
	}
}

func TestChatFilter_CallbackQuery(t *testing.T) {
	update := &models.Update{
		CallbackQuery: &models.CallbackQuery{
			ID: "callback123",
			Message: models.MaybeInaccessibleMessage{
				Message: &models.Message{
					Chat: models.Chat{ID: 123456789},
				},
			},
		},
	}
	if !runFilter(t, []int64{123456789}, nil, update) {
		t.Error("expected handler to be called for callback query in allowed chat")
	}
}

func TestChatFilter_CallbackQueryNoMessage(t *testing.T) {
	update := &models.Update{
		CallbackQuery: &models.CallbackQuery{
			ID:              "callback123",
			InlineMessageID: "inline123",
		},
	}
	if runFilter(t, []int64{}, nil, update) {
		t.Error("expected handler NOT to be called for callback query without a message")
	}
}

func TestChatFilter_ChatMemberUpdate(t *testing.T) {
	update := &models.Update{
		MyChatMember: &models.ChatMemberUpdated{
			Chat: models.Chat{ID: -1009876543210},
		},
	}
	if !runFilter(t, []int64{-1009876543210}, nil, update) {
		t.Error("expected handler to be called for chat member update in allowed chat")
	}
}

func TestChatFilter_LeavesUnauthorizedChat(t *testing.T) {
	leaver := &fakeLeaver{err: errors.New("forbidden")}

	if runFilter(t, []int64{1}, leaver, messageIn(2)) {
		t.Error("expected handler NOT to be called for denied chat")
	}
	if len(leaver.left) != 1 || leaver.left[0] != 2 {
		t.Errorf("expected to leave chat 2, left %v", leaver.left)
	}

	runFilter(t, []int64{1}, leaver, messageIn(1))
	if len(leaver.left) != 1 {
		t.Errorf("expected allowed chat to be kept, left %v", leaver.left)
	}
}
