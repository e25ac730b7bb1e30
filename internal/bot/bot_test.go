package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/graffic/quotebot/internal/bot/middleware"
	"github.com/graffic/quotebot/internal/cache"
	"github.com/graffic/quotebot/internal/errlog"
	"github.com/graffic/quotebot/internal/ingest"
	"github.com/graffic/quotebot/internal/lock"
	"github.com/graffic/quotebot/internal/quotes"
	"github.com/graffic/quotebot/internal/requests"
	"github.com/graffic/quotebot/internal/selector"
	"github.com/graffic/quotebot/internal/telegram"
	"github.com/graffic/quotebot/internal/testutils"
	"github.com/graffic/quotebot/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const adminID = 1000

// MockTelegramClient is a mock for the telegram.Client interface
type MockTelegramClient struct {
	mock.Mock
}

func (m *MockTelegramClient) SendMessage(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (*models.Message, error) {
	args := m.Called(ctx, chatID, text, opts)
	return &models.Message{ID: 1}, args.Error(0)
}

func (m *MockTelegramClient) SendPhotos(ctx context.Context, chatID int64, urls []string, replyTo int) error {
	args := m.Called(ctx, chatID, urls, replyTo)
	return args.Error(0)
}

func (m *MockTelegramClient) AnswerCallback(ctx context.Context, callbackID, text string) error {
	args := m.Called(ctx, callbackID, text)
	return args.Error(0)
}

func (m *MockTelegramClient) LeaveChat(ctx context.Context, chatID int64) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

// Ensure MockTelegramClient implements telegram.Client
var _ telegram.Client = (*MockTelegramClient)(nil)

type sentMessage struct {
	chatID int64
	text   string
	opts   telegram.SendOptions
}

// messages returns the messages sent since the previous call.
func (m *MockTelegramClient) messages(t *testing.T, from *int) []sentMessage {
	t.Helper()
	var out []sentMessage
	calls := m.Calls[*from:]
	*from = len(m.Calls)
	for _, c := range calls {
		if c.Method != "SendMessage" {
			continue
		}
		out = append(out, sentMessage{
			chatID: c.Arguments.Get(1).(int64),
			text:   c.Arguments.Get(2).(string),
			opts:   c.Arguments.Get(3).(telegram.SendOptions),
		})
	}
	return out
}

type failingFetcher struct{}

func (failingFetcher) FetchByID(context.Context, int64) (*quotes.External, error) {
	return nil, errors.New("source unavailable")
}

func (failingFetcher) FetchBatch(context.Context) ([]quotes.External, error) {
	return nil, errors.New("source unavailable")
}

type harness struct {
	bot    *Bot
	client *MockTelegramClient
	tdb    *testutils.TestDB
	quotes *quotes.Store
	log    *requests.Log
	errors *errlog.Log
	cursor int
}

func newHarness(t *testing.T, allowedChats ...int64) *harness {
	t.Helper()
	tdb := testutils.NewTestDB(t,
		&quotes.Quote{}, &quotes.Comics{}, &requests.Request{},
		&users.Settings{}, &users.User{}, &users.Chat{}, &errlog.Error{},
	)

	client := &MockTelegramClient{}
	client.On("SendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	client.On("SendPhotos", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	client.On("AnswerCallback", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	client.On("LeaveChat", mock.Anything, mock.Anything).Return(nil)

	logger := testutils.Logger()
	quoteStore := quotes.NewStore(tdb.DB, tdb.Writer)
	userStore := users.NewStore(tdb.DB, tdb.Writer)
	requestLog := requests.NewLog(tdb.DB, tdb.Writer)
	errorLog := errlog.NewLog(tdb.DB, tdb.Writer)
	sel := selector.New(tdb.DB)

	b := New(Deps{
		Client:   client,
		Quotes:   quoteStore,
		Requests: requestLog,
		Users:    userStore,
		Selector: sel,
		Cache:    cache.NewService(sel, userStore, 20),
		Errors:   errorLog,
		Ingest:   ingest.NewService(quoteStore, failingFetcher{}, lock.NewLocal(), logger),
		IsAdmin:  func(id int64) bool { return id == adminID },
		Logger:   logger,
	})
	b.Use(
		middleware.CatchErrors(errorLog, client, logger),
		middleware.Logging(logger),
		middleware.ChatFilter(allowedChats, nil, logger),
		middleware.TrackRequest(userStore, requestLog, 5*time.Second, logger),
	)

	return &harness{bot: b, client: client, tdb: tdb, quotes: quoteStore, log: requestLog, errors: errorLog}
}

func (h *harness) seed(t *testing.T, id int64, day time.Time, text string, comics ...string) {
	t.Helper()
	_, _, err := h.quotes.GetOrCreate(context.Background(), quotes.External{
		ID:         id,
		URL:        "https://example.org/quote/" + itoa(id),
		Text:       text,
		Date:       day,
		Rating:     int(id),
		ComicsURLs: comics,
	})
	require.NoError(t, err)
}

// seedScenario stores quotes 1 and 2 from 2020 and quote 3 from 2021.
func (h *harness) seedScenario(t *testing.T) {
	h.seed(t, 1, time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC), "first quote")
	h.seed(t, 2, time.Date(2020, 7, 9, 0, 0, 0, 0, time.UTC), "second quote", "https://example.org/strip/2.png")
	h.seed(t, 3, time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC), "third quote")
}

func (h *harness) send(userID int64, text string) {
	h.bot.Handle(context.Background(), &models.Update{
		ID: 1,
		Message: &models.Message{
			ID:   42,
			Text: text,
			Chat: models.Chat{ID: userID, Type: models.ChatTypePrivate},
			From: &models.User{ID: userID, FirstName: "User"},
		},
	})
}

func (h *harness) press(userID int64, data string) {
	h.bot.Handle(context.Background(), &models.Update{
		ID: 2,
		CallbackQuery: &models.CallbackQuery{
			ID:   "cb",
			From: models.User{ID: userID},
			Data: data,
			Message: models.MaybeInaccessibleMessage{
				Message: &models.Message{ID: 43, Chat: models.Chat{ID: userID, Type: models.ChatTypePrivate}},
			},
		},
	})
}

func (h *harness) replies(t *testing.T) []sentMessage {
	return h.client.messages(t, &h.cursor)
}

func (h *harness) lastReply(t *testing.T) string {
	t.Helper()
	msgs := h.replies(t)
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1].text
}

func (h *harness) delivered(t *testing.T, userID int64) []int64 {
	t.Helper()
	var ids []int64
	for id, err := range h.log.QuoteIDsSeenBy(context.Background(), userID) {
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestQuoteRequest_NoRepeatUntilExhausted(t *testing.T) {
	h := newHarness(t)
	h.seedScenario(t)

	for i := 0; i < 3; i++ {
		h.send(7, "more please")
	}
	assert.ElementsMatch(t, []int64{1, 2, 3}, h.delivered(t, 7))

	h.replies(t)
	h.send(7, "/quote")
	assert.Equal(t, exhaustedText, h.lastReply(t))

	total, err := h.log.CountByUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
}

func TestQuoteRequest_YearFilter(t *testing.T) {
	h := newHarness(t)
	h.seedScenario(t)

	h.send(7, "/years 2020")
	assert.Contains(t, h.lastReply(t), "2020")

	h.send(7, "/quote")
	h.send(7, "/quote")
	assert.ElementsMatch(t, []int64{1, 2}, h.delivered(t, 7))

	h.replies(t)
	h.send(7, "/quote")
	assert.Equal(t, exhaustedText+relaxHint, h.lastReply(t))

	h.send(7, "/years all")
	h.send(7, "/quote")
	assert.Equal(t, int64(3), h.delivered(t, 7)[0])
}

func TestSettings_InvalidatesCache(t *testing.T) {
	h := newHarness(t)
	h.seedScenario(t)

	h.send(7, "/quote")
	assert.Equal(t, 2, h.bot.Cache.Size(7))

	h.send(7, "/max_length 5")
	assert.Equal(t, 0, h.bot.Cache.Size(7))

	h.replies(t)
	h.send(7, "/quote")
	assert.Equal(t, exhaustedText+relaxHint, h.lastReply(t))

	h.send(7, "/max_length off")
	assert.Contains(t, h.lastReply(t), "off")
}

func TestSettings_RejectsMalformedInput(t *testing.T) {
	h := newHarness(t)
	h.seedScenario(t)

	tests := []struct {
		text  string
		reply string
	}{
		{"/years abc", "Use /years"},
		{"/years", "Use /years"},
		{"/years 1999", "no quotes from 1999"},
		{"/max_length -3", "Use /max_length"},
		{"/max_length lots", "Use /max_length"},
	}
	for _, tt := range tests {
		h.send(7, tt.text)
		assert.Contains(t, h.lastReply(t), tt.reply, tt.text)
	}

	h.send(7, "/settings")
	reply := h.lastReply(t)
	assert.Contains(t, reply, "Years: <b>all</b>")
	assert.Contains(t, reply, "Available years: 2020, 2021")
}

func TestGet(t *testing.T) {
	h := newHarness(t)
	h.seedScenario(t)

	h.send(7, "/get 2")
	msgs := h.replies(t)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].text, "second quote")
	require.Len(t, msgs[0].opts.Buttons, 1)
	assert.Equal(t, "comics_2", msgs[0].opts.Buttons[0][0].Data)
	assert.Equal(t, []int64{2}, h.delivered(t, 7))

	h.send(7, "/get 99")
	assert.Contains(t, h.lastReply(t), "#99 is not in the database")

	h.send(7, "/get")
	assert.Contains(t, h.lastReply(t), "missing")
}

func TestComicsCallback(t *testing.T) {
	h := newHarness(t)
	h.seedScenario(t)

	h.press(7, "comics_2")

	h.client.AssertCalled(t, "AnswerCallback", mock.Anything, "cb", "")
	h.client.AssertCalled(t, "SendPhotos", mock.Anything, int64(7), []string{"https://example.org/strip/2.png"}, 43)
}

func TestFindAndDeliverFromButtons(t *testing.T) {
	h := newHarness(t)
	h.seedScenario(t)

	h.send(7, "/find QUOTE$")
	msgs := h.replies(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Found 3:\n#1, #2, #3", msgs[0].text)
	require.Len(t, msgs[0].opts.Buttons, 1)
	data := msgs[0].opts.Buttons[0][0].Data
	assert.Equal(t, "quotes_42_1,2,3", data)

	h.press(7, data)
	assert.Len(t, h.replies(t), 3)
	assert.ElementsMatch(t, []int64{1, 2, 3}, h.delivered(t, 7))

	h.send(7, "/find_new quote")
	assert.Equal(t, "Nothing found", h.lastReply(t))

	h.send(7, "/find_my second")
	assert.Equal(t, "Found 1:\n#2", h.lastReply(t))

	h.send(7, "/find (")
	assert.Contains(t, h.lastReply(t), "Invalid regular expression")
}

func TestDate(t *testing.T) {
	h := newHarness(t)
	h.seedScenario(t)

	h.send(7, "01.03.2020")
	msgs := h.replies(t)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].text, "first quote")

	h.send(7, "/date 01.05.2020")
	msgs = h.replies(t)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].text, "no quotes")
	require.Len(t, msgs[0].opts.Buttons, 1)
	require.Len(t, msgs[0].opts.Buttons[0], 2)
	assert.Equal(t, "date_01.03.2020_1", msgs[0].opts.Buttons[0][0].Data)
	assert.Equal(t, "date_09.07.2020_1", msgs[0].opts.Buttons[0][1].Data)

	h.press(7, "date_09.07.2020_1")
	assert.Contains(t, h.lastReply(t), "second quote")

	h.send(7, "/date yesterday")
	assert.Contains(t, h.lastReply(t), "Use a date like")
}

func TestUsedQuote(t *testing.T) {
	h := newHarness(t)
	h.seedScenario(t)

	h.send(7, "/get 1")
	h.send(7, "/get 3")
	h.send(7, "/get 1")

	h.send(7, "/get_used_quote 1")
	assert.Equal(t, "Quote #1 found at [0, 2]", h.lastReply(t))

	h.send(7, "/get_used_last_quote")
	assert.Equal(t, "Quote #1 found at [0, 2]", h.lastReply(t))

	h.send(7, "/get_used_quote 2")
	assert.Equal(t, "Quote #2 is not in your history", h.lastReply(t))
}

func TestStatsCommands(t *testing.T) {
	h := newHarness(t)
	h.seedScenario(t)

	h.send(7, "/get 2")
	h.send(7, "/stats")
	assert.Contains(t, h.lastReply(t), "Quotes received: <b>1</b>, with comics <b>1</b>")

	h.send(7, "/get_number_of_unique_quotes")
	assert.Contains(t, h.lastReply(t), "Left: <b>2</b>")

	h.send(7, "/get_detail_of_unique_quotes")
	reply := h.lastReply(t)
	assert.Contains(t, reply, "<b>2020</b>: 1")
	assert.Contains(t, reply, "<b>2021</b>: 1")

	h.send(7, "/quote_stats")
	assert.Contains(t, h.lastReply(t), "Total <b>3</b>, with comics <b>1</b>")

	h.press(7, "stats_comics")
	assert.Contains(t, h.lastReply(t), "<b>2020</b>: 1")

	h.send(7, "/cache")
	assert.Contains(t, h.lastReply(t), "<b>0</b>")
}

func TestAdminCommands(t *testing.T) {
	h := newHarness(t)
	h.seedScenario(t)

	h.send(7, "/admin_stats")
	assert.Equal(t, "Unknown command. See /help", h.lastReply(t))

	h.send(adminID, "/admin_stats")
	reply := h.lastReply(t)
	assert.Contains(t, reply, "Users: <b>2</b>")
	assert.Contains(t, reply, "Quotes <b>3</b>, with comics <b>1</b>")

	h.send(adminID, "/users")
	assert.Contains(t, h.lastReply(t), "Users (2)")

	h.send(adminID, "/help")
	assert.Contains(t, h.lastReply(t), "/admin_stats")
	h.send(7, "/help")
	assert.NotContains(t, h.lastReply(t), "/admin_stats")
}

func TestHandlerErrorsAreRecorded(t *testing.T) {
	h := newHarness(t)

	h.send(adminID, "/update_quote 5")
	assert.Equal(t, middleware.ErrorText, h.lastReply(t))

	last, err := h.errors.Last(context.Background())
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "/update_quote", last.Command)
	assert.True(t, strings.Contains(last.Text, "source unavailable"))
}

func TestChatFilter_DropsOtherChats(t *testing.T) {
	h := newHarness(t, 7)
	h.seedScenario(t)

	h.send(8, "/quote")
	assert.Empty(t, h.replies(t))
	assert.Empty(t, h.delivered(t, 8))
	rows, err := h.log.CountByUser(context.Background(), 8)
	require.NoError(t, err)
	assert.Zero(t, rows)

	h.send(7, "/quote")
	assert.Len(t, h.replies(t), 1)
}

func TestCommands_Menu(t *testing.T) {
	b := New(Deps{Logger: testutils.Logger()})
	var names []string
	for _, c := range b.Commands() {
		names = append(names, c.Command)
	}
	assert.Contains(t, names, "quote")
	assert.Contains(t, names, "find_new")
	assert.NotContains(t, names, "admin_stats")
	assert.NotContains(t, names, "start")
}
