package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/varal-bridge/internal/commands"
	"github.com/benmeehan/varal-bridge/internal/constants"
	"github.com/benmeehan/varal-bridge/internal/correlator"
	"github.com/benmeehan/varal-bridge/internal/models"
	"github.com/benmeehan/varal-bridge/internal/ratelimit"
	"github.com/benmeehan/varal-bridge/pkg/mqtt"
)

// ChatSender delivers text replies to a conversation.
type ChatSender interface {
	SendText(ctx context.Context, chatID int64, text string, markdown bool) error
}

// Outcome is the terminal result of handling one chat request.
type Outcome int

const (
	OutcomeNotUnderstood Outcome = iota // Help text sent, nothing published
	OutcomeRateLimited                  // Remaining-wait notice sent, nothing published
	OutcomeStatus                       // Status summary sent
	OutcomeTimeout                      // Timeout notice sent
	OutcomeAborted                      // Stopped early by a send failure or cancellation
	OutcomePending                      // Command published, status wait outstanding
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotUnderstood:
		return "not_understood"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeStatus:
		return "status"
	case OutcomeTimeout:
		return "timeout"
	case OutcomePending:
		return "pending"
	default:
		return "aborted"
	}
}

// RelayService turns chat commands into MQTT control messages and replies
// with the status report that follows, or a timeout notice.
type RelayService struct {
	// Configuration fields
	topic          string
	qos            int
	statusTimeout  time.Duration
	motionInterval time.Duration
	publishTimeout time.Duration

	// Dependencies
	mqttClient mqtt.MQTTClient
	sender     ChatSender
	correlator *correlator.Correlator
	limiter    *ratelimit.Limiter
	logger     zerolog.Logger

	now func() time.Time
}

// NewRelayService initializes a RelayService.
func NewRelayService(
	topic string,
	qos int,
	statusTimeout time.Duration,
	motionInterval time.Duration,
	mqttClient mqtt.MQTTClient,
	sender ChatSender,
	statusCorrelator *correlator.Correlator,
	limiter *ratelimit.Limiter,
	logger zerolog.Logger,
) *RelayService {
	if statusTimeout <= 0 {
		statusTimeout = constants.DefaultStatusTimeoutMs * time.Millisecond
	}
	if motionInterval <= 0 {
		motionInterval = constants.DefaultMotionIntervalMs * time.Millisecond
	}

	return &RelayService{
		topic:          topic,
		qos:            qos,
		statusTimeout:  statusTimeout,
		motionInterval: motionInterval,
		publishTimeout: constants.DefaultPublishTimeout,
		mqttClient:     mqttClient,
		sender:         sender,
		correlator:     statusCorrelator,
		limiter:        limiter,
		logger:         logger,
		now:            time.Now,
	}
}

// Greet answers the /start trigger.
func (rs *RelayService) Greet(ctx context.Context, chatID int64) error {
	return rs.sender.SendText(ctx, chatID, commands.GreetingText(), true)
}

// Pending is a published command whose status reply is still outstanding.
type Pending struct {
	Request models.ChatRequest
	Command string

	waiter *correlator.Waiter
}

// Handle runs one chat request to completion. It returns once the terminal
// reply has been sent; a non-nil error means that reply could not be sent.
func (rs *RelayService) Handle(ctx context.Context, req models.ChatRequest) (Outcome, error) {
	outcome, pending, err := rs.Dispatch(ctx, req)
	if pending == nil {
		return outcome, err
	}
	return rs.Await(ctx, pending)
}

// Dispatch runs a request up to the status wait: match, cooldown,
// acknowledgment and publish. When a command went out it returns
// OutcomePending and the Pending to hand to Await; otherwise the returned
// outcome is terminal.
func (rs *RelayService) Dispatch(ctx context.Context, req models.ChatRequest) (Outcome, *Pending, error) {
	logger := rs.logger.With().Int64("chat_id", req.ConversationID).Logger()

	cmd, ok := commands.Match(req.Text)
	if !ok {
		logger.Debug().Str("text", req.Text).Msg("Command not understood")
		return OutcomeNotUnderstood, nil, rs.sender.SendText(ctx, req.ConversationID, commands.HelpText(), true)
	}

	key := req.Key()
	if decision := rs.limiter.CheckAndRecord(key, cmd.Command, rs.now(), rs.motionInterval); !decision.Allowed {
		logger.Info().Str("command", cmd.Command).Dur("remaining", decision.Remaining).Msg("Motion command rate limited")
		reply := fmt.Sprintf(constants.ReplyRateLimited, decision.RemainingSeconds())
		return OutcomeRateLimited, nil, rs.sender.SendText(ctx, req.ConversationID, reply, false)
	}

	if err := rs.sender.SendText(ctx, req.ConversationID, cmd.Ack, true); err != nil {
		return OutcomeAborted, nil, fmt.Errorf("failed to send acknowledgment: %w", err)
	}

	// Registered before publishing so a fast status report cannot slip past.
	waiter := rs.correlator.Register(key, rs.statusTimeout)
	rs.publish(logger, cmd.Command)

	return OutcomePending, &Pending{Request: req, Command: cmd.Command, waiter: waiter}, nil
}

// Await blocks until the status for p arrives or its deadline passes, then
// sends the terminal reply.
func (rs *RelayService) Await(ctx context.Context, p *Pending) (Outcome, error) {
	logger := rs.logger.With().Int64("chat_id", p.Request.ConversationID).Logger()
	chatID := p.Request.ConversationID

	status, err := p.waiter.Wait(ctx)
	switch {
	case err == nil:
		logger.Info().Str("command", p.Command).Msg("Status relayed")
		return OutcomeStatus, rs.sender.SendText(ctx, chatID, FormatStatus(status), true)
	case errors.Is(err, correlator.ErrTimeout):
		logger.Warn().Str("command", p.Command).Dur("timeout", rs.statusTimeout).Msg("No status before deadline")
		return OutcomeTimeout, rs.sender.SendText(ctx, chatID, constants.ReplyTimeout, false)
	default:
		logger.Info().Err(err).Msg("Stopped waiting for status")
		return OutcomeAborted, err
	}
}

// publish sends the command token without waiting for delivery beyond the
// client's own write.
func (rs *RelayService) publish(logger zerolog.Logger, command string) {
	token := rs.mqttClient.Publish(rs.topic, byte(rs.qos), constants.CommandRetained, command)
	if !token.WaitTimeout(rs.publishTimeout) {
		logger.Warn().Str("topic", rs.topic).Str("command", command).Msg("Publish still pending")
		return
	}
	if err := token.Error(); err != nil {
		logger.Error().Err(err).Str("topic", rs.topic).Str("command", command).Msg("Failed to publish command")
		return
	}
	logger.Info().Str("topic", rs.topic).Str("command", command).Msg("Command published")
}

// FormatStatus renders a status report as a Markdown summary.
func FormatStatus(st models.Status) string {
	return strings.Join([]string{
		"📊 *Status do Varal*",
		"• Estado: *" + displayValue(st.State) + "*",
		"• Modo: *" + displayValue(st.Mode) + "*",
		"• Umidade: *" + displayValue(st.Humidity) + "*",
		"• Motor: *" + displayValue(st.Motor) + "*",
	}, "\n")
}

func displayValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case string:
		if val == "" {
			return "-"
		}
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
