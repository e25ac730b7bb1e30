package telegram

import (
	"context"
	"fmt"
	"os"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// albumSize is the Bot API limit of photos per media group.
const albumSize = 10

// UpdateHandler receives every update the bot polls
type UpdateHandler func(ctx context.Context, update *models.Update)

// HTTPClient wraps go-telegram/bot.Bot and implements Client
type HTTPClient struct {
	bot *bot.Bot
}

type clientOptions struct {
	debug     bool
	serverURL string
}

// Option configures the HTTPClient
type Option func(*clientOptions)

// WithDebug enables debug mode
func WithDebug() Option {
	return func(c *clientOptions) {
		c.debug = true
	}
}

// WithServerURL points the client at another Bot API server
func WithServerURL(url string) Option {
	return func(c *clientOptions) {
		c.serverURL = url
	}
}

// NewHTTPClient creates a client routing every update to handler
func NewHTTPClient(token string, handler UpdateHandler, opts ...Option) (*HTTPClient, error) {
	options := &clientOptions{
		debug: os.Getenv("DEBUG") == "true",
	}
	for _, opt := range opts {
		opt(options)
	}

	botOpts := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithDefaultHandler(func(ctx context.Context, _ *bot.Bot, update *models.Update) {
			handler(ctx, update)
		}),
	}
	if options.debug {
		botOpts = append(botOpts, bot.WithDebug())
	}
	if options.serverURL != "" {
		botOpts = append(botOpts, bot.WithServerURL(options.serverURL))
	}

	b, err := bot.New(token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return &HTTPClient{bot: b}, nil
}

// GetMe returns the bot's own user
func (c *HTTPClient) GetMe(ctx context.Context) (*models.User, error) {
	return c.bot.GetMe(ctx)
}

// SendMessage implements Client
func (c *HTTPClient) SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) (*models.Message, error) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if opts.ReplyTo != 0 {
		params.ReplyParameters = &models.ReplyParameters{
			MessageID:                opts.ReplyTo,
			AllowSendingWithoutReply: true,
		}
	}
	if opts.DisablePreview {
		disabled := true
		params.LinkPreviewOptions = &models.LinkPreviewOptions{IsDisabled: &disabled}
	}
	if len(opts.Buttons) > 0 {
		params.ReplyMarkup = keyboard(opts.Buttons)
	}
	return c.bot.SendMessage(ctx, params)
}

func keyboard(rows [][]Button) *models.InlineKeyboardMarkup {
	markup := &models.InlineKeyboardMarkup{
		InlineKeyboard: make([][]models.InlineKeyboardButton, 0, len(rows)),
	}
	for _, row := range rows {
		buttons := make([]models.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, models.InlineKeyboardButton{Text: b.Text, CallbackData: b.Data})
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, buttons)
	}
	return markup
}

// SendPhotos implements Client
func (c *HTTPClient) SendPhotos(ctx context.Context, chatID int64, urls []string, replyTo int) error {
	var reply *models.ReplyParameters
	if replyTo != 0 {
		reply = &models.ReplyParameters{MessageID: replyTo, AllowSendingWithoutReply: true}
	}

	for start := 0; start < len(urls); start += albumSize {
		end := min(start+albumSize, len(urls))
		chunk := urls[start:end]

		if len(chunk) == 1 {
			_, err := c.bot.SendPhoto(ctx, &bot.SendPhotoParams{
				ChatID:          chatID,
				Photo:           &models.InputFileString{Data: chunk[0]},
				ReplyParameters: reply,
			})
			if err != nil {
				return fmt.Errorf("failed to send photo: %w", err)
			}
			continue
		}

		media := make([]models.InputMedia, 0, len(chunk))
		for _, url := range chunk {
			media = append(media, &models.InputMediaPhoto{Media: url})
		}
		if _, err := c.bot.SendMediaGroup(ctx, &bot.SendMediaGroupParams{
			ChatID:          chatID,
			Media:           media,
			ReplyParameters: reply,
		}); err != nil {
			return fmt.Errorf("failed to send media group: %w", err)
		}
	}
	return nil
}

// AnswerCallback implements Client
func (c *HTTPClient) AnswerCallback(ctx context.Context, callbackID, text string) error {
	_, err := c.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	return err
}

// LeaveChat implements Client
func (c *HTTPClient) LeaveChat(ctx context.Context, chatID int64) error {
	_, err := c.bot.LeaveChat(ctx, &bot.LeaveChatParams{ChatID: chatID})
	return err
}

// SetCommands publishes the command menu
func (c *HTTPClient) SetCommands(ctx context.Context, commands []Command) error {
	list := make([]models.BotCommand, 0, len(commands))
	for _, cmd := range commands {
		list = append(list, models.BotCommand{Command: cmd.Command, Description: cmd.Description})
	}
	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: list})
	return err
}

// Start begins the bot's polling loop
// This should be called in a goroutine
func (c *HTTPClient) Start(ctx context.Context) error {
	c.bot.Start(ctx)
	return ctx.Err()
}
