package telegram

import (
	"context"

	"github.com/go-telegram/bot/models"
)

// Client is the part of the Bot API the handlers use
type Client interface {
	// SendMessage sends an HTML message to a chat
	SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) (*models.Message, error)

	// SendPhotos sends image URLs as albums of up to ten photos
	SendPhotos(ctx context.Context, chatID int64, urls []string, replyTo int) error

	// AnswerCallback acknowledges a button press
	AnswerCallback(ctx context.Context, callbackID, text string) error

	// LeaveChat makes the bot leave a chat
	LeaveChat(ctx context.Context, chatID int64) error
}

// Button is one inline keyboard button carrying callback data
type Button struct {
	Text string
	Data string
}

// SendOptions tunes SendMessage
type SendOptions struct {
	ReplyTo        int
	DisablePreview bool
	Buttons        [][]Button
}

// Command is a bot command advertised in the client menu
type Command struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}
