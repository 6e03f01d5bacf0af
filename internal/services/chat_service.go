package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/mymmrac/telego"
	"github.com/rs/zerolog"

	"github.com/benmeehan/varal-bridge/internal/models"
	"github.com/benmeehan/varal-bridge/internal/utils"
)

// UpdateSource yields inbound chat updates until ctx is cancelled.
type UpdateSource interface {
	Updates(ctx context.Context) (<-chan telego.Update, error)
}

// RequestHandler processes inbound chat traffic.
type RequestHandler interface {
	Greet(ctx context.Context, chatID int64) error
	Dispatch(ctx context.Context, req models.ChatRequest) (Outcome, *Pending, error)
	Await(ctx context.Context, p *Pending) (Outcome, error)
}

// ChatService pulls chat updates and dispatches each text message to the
// relay on a worker pool. Status waits run outside the pool so a slow reply
// never holds a worker.
type ChatService struct {
	// Configuration Fields
	workers int

	// Dependencies
	source  UpdateSource
	handler RequestHandler
	logger  zerolog.Logger

	// Internal state management
	pool   *utils.WorkerPool
	wg     sync.WaitGroup
	waits  sync.WaitGroup
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewChatService initializes a ChatService.
func NewChatService(workers int, source UpdateSource, handler RequestHandler, logger zerolog.Logger) *ChatService {
	return &ChatService{
		workers: workers,
		source:  source,
		handler: handler,
		logger:  logger,
	}
}

// Start begins consuming updates.
func (cs *ChatService) Start() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ctx != nil {
		return errors.New("chat service is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	updates, err := cs.source.Updates(ctx)
	if err != nil {
		cancel()
		cs.logger.Error().Err(err).Msg("Failed to start receiving chat updates")
		return err
	}

	cs.ctx, cs.cancel = ctx, cancel
	cs.pool = utils.NewWorkerPool(cs.workers, cs.logger)

	cs.wg.Add(1)
	go func() {
		defer cs.wg.Done()
		cs.dispatchLoop(ctx, updates)
	}()

	cs.logger.Info().Int("workers", cs.workers).Msg("ChatService started successfully")
	return nil
}

// Stop stops accepting updates and abandons in-flight status waits.
func (cs *ChatService) Stop() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ctx == nil {
		return errors.New("chat service is not running")
	}

	cs.cancel()
	cs.wg.Wait()
	cs.pool.Shutdown()
	// No pool job is left to start a wait, so Wait cannot race an Add.
	cs.waits.Wait()

	cs.ctx = nil
	cs.cancel = nil
	cs.pool = nil

	cs.logger.Info().Msg("ChatService stopped successfully")
	return nil
}

func (cs *ChatService) dispatchLoop(ctx context.Context, updates <-chan telego.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			cs.dispatch(ctx, update)
		}
	}
}

// dispatch queues the update's text message, if any, for a worker.
func (cs *ChatService) dispatch(ctx context.Context, update telego.Update) {
	msg := update.Message
	if msg == nil || msg.Text == "" {
		return
	}

	chatID := msg.Chat.ID
	text := msg.Text

	cs.pool.Submit(ctx, func() {
		logger := cs.logger.With().Int64("chat_id", chatID).Logger()

		if isStartCommand(text) {
			if err := cs.handler.Greet(ctx, chatID); err != nil {
				logger.Error().Err(err).Msg("Failed to send greeting")
			}
			return
		}

		outcome, pending, err := cs.handler.Dispatch(ctx, models.ChatRequest{ConversationID: chatID, Text: text})
		if pending == nil {
			cs.logOutcome(ctx, logger, outcome, err)
			return
		}

		cs.waits.Add(1)
		go func() {
			defer cs.waits.Done()
			outcome, err := cs.handler.Await(ctx, pending)
			cs.logOutcome(ctx, logger, outcome, err)
		}()
	})
}

func (cs *ChatService) logOutcome(ctx context.Context, logger zerolog.Logger, outcome Outcome, err error) {
	if err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Str("outcome", outcome.String()).Msg("Failed to complete chat request")
		return
	}
	logger.Debug().Str("outcome", outcome.String()).Msg("Chat request handled")
}

// isStartCommand reports whether text is the /start trigger, optionally
// addressed to a bot (/start@name) or carrying a payload.
func isStartCommand(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	name, _, _ := strings.Cut(fields[0], "@")
	return name == "/start"
}
