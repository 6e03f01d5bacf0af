package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/varal-bridge/internal/commands"
	"github.com/benmeehan/varal-bridge/internal/constants"
	"github.com/benmeehan/varal-bridge/internal/correlator"
	"github.com/benmeehan/varal-bridge/internal/mocks"
	"github.com/benmeehan/varal-bridge/internal/models"
	"github.com/benmeehan/varal-bridge/internal/ratelimit"
)

const testTopic = "varal/controle"

var validStatus = []byte(`{"estado":"liberado","modo":"manual","umidade":42,"motor":"parado"}`)

type relayFixture struct {
	relay      *RelayService
	mqttClient *mocks.MQTTClient
	sender     *mocks.ChatSender
	correlator *correlator.Correlator
	limiter    *ratelimit.Limiter
	clock      time.Time
}

func newRelayFixture(statusTimeout time.Duration) *relayFixture {
	f := &relayFixture{
		mqttClient: new(mocks.MQTTClient),
		sender:     new(mocks.ChatSender),
		correlator: correlator.NewCorrelator(zerolog.Nop()),
		limiter:    ratelimit.NewLimiter(),
		clock:      time.Unix(1_700_000_000, 0),
	}
	f.relay = NewRelayService(testTopic, 0, statusTimeout, 3*time.Second, f.mqttClient, f.sender, f.correlator, f.limiter, zerolog.Nop())
	f.relay.now = func() time.Time { return f.clock }
	return f
}

func request(text string) models.ChatRequest {
	return models.ChatRequest{ConversationID: 42, Text: text}
}

func TestRelay_NotUnderstood(t *testing.T) {
	f := newRelayFixture(time.Second)
	f.sender.On("SendText", mock.Anything, int64(42), commands.HelpText(), true).Return(nil)

	outcome, err := f.relay.Handle(context.Background(), request("xyz"))

	assert.NoError(t, err)
	assert.Equal(t, OutcomeNotUnderstood, outcome)
	assert.Equal(t, 0, f.correlator.Pending())
	assert.Equal(t, 0, f.limiter.Len())
	f.mqttClient.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.sender.AssertExpectations(t)
}

func TestRelay_StatusReply(t *testing.T) {
	f := newRelayFixture(time.Second)
	f.sender.On("SendText", mock.Anything, int64(42), mock.Anything, mock.Anything).Return(nil)
	f.mqttClient.On("Publish", testTopic, byte(0), false, commands.TokenLiberar).
		Return(mocks.NewToken(nil)).
		Run(func(mock.Arguments) { f.correlator.Deliver(validStatus) }).
		Once()

	outcome, err := f.relay.Handle(context.Background(), request("liberar"))

	require.NoError(t, err)
	assert.Equal(t, OutcomeStatus, outcome)

	sent := f.sender.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "🔄 Tentando liberar varal...", sent[0].Text)
	assert.True(t, sent[0].Markdown)
	assert.Contains(t, sent[1].Text, "Estado: *liberado*")
	assert.Contains(t, sent[1].Text, "Umidade: *42*")
	assert.Equal(t, 0, f.correlator.Pending())
	f.mqttClient.AssertExpectations(t)
}

func TestRelay_StatusArrivesLater(t *testing.T) {
	f := newRelayFixture(time.Second)
	f.sender.On("SendText", mock.Anything, int64(42), mock.Anything, mock.Anything).Return(nil)
	f.mqttClient.On("Publish", testTopic, byte(0), false, commands.TokenRecolher).Return(mocks.NewToken(nil))

	go func() {
		assert.Eventually(t, func() bool { return f.correlator.Pending() == 1 }, time.Second, time.Millisecond)
		f.correlator.Deliver([]byte("recolher"))
		f.correlator.Deliver(validStatus)
	}()

	outcome, err := f.relay.Handle(context.Background(), request("Recolher"))

	require.NoError(t, err)
	assert.Equal(t, OutcomeStatus, outcome)
	assert.Len(t, f.sender.Sent(), 2)
}

func TestRelay_Timeout(t *testing.T) {
	f := newRelayFixture(30 * time.Millisecond)
	f.sender.On("SendText", mock.Anything, int64(42), mock.Anything, mock.Anything).Return(nil)
	f.mqttClient.On("Publish", testTopic, byte(0), false, commands.TokenLiberar).Return(mocks.NewToken(nil))

	outcome, err := f.relay.Handle(context.Background(), request("liberar"))

	require.NoError(t, err)
	assert.Equal(t, OutcomeTimeout, outcome)

	sent := f.sender.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, constants.ReplyTimeout, sent[1].Text)
	assert.Equal(t, 0, f.correlator.Pending())
}

func TestRelay_RateLimited(t *testing.T) {
	f := newRelayFixture(20 * time.Millisecond)
	f.sender.On("SendText", mock.Anything, int64(42), mock.Anything, mock.Anything).Return(nil)
	f.mqttClient.On("Publish", testTopic, byte(0), false, commands.TokenRecolher).Return(mocks.NewToken(nil)).Once()

	outcome, err := f.relay.Handle(context.Background(), request("recolher"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimeout, outcome)

	f.clock = f.clock.Add(1000 * time.Millisecond)
	outcome, err = f.relay.Handle(context.Background(), request("liberar"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRateLimited, outcome)

	sent := f.sender.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, "⚠️ Aguarde 2s antes de enviar outro comando de movimento.", sent[2].Text)
	assert.Equal(t, 0, f.correlator.Pending())
	f.mqttClient.AssertExpectations(t)
}

func TestRelay_ModeSwitchSkipsRateLimiter(t *testing.T) {
	f := newRelayFixture(20 * time.Millisecond)
	f.sender.On("SendText", mock.Anything, int64(42), mock.Anything, mock.Anything).Return(nil)
	f.mqttClient.On("Publish", testTopic, byte(0), false, commands.TokenAuto).Return(mocks.NewToken(nil)).Once()
	f.mqttClient.On("Publish", testTopic, byte(0), false, commands.TokenLiberar).Return(mocks.NewToken(nil)).Once()

	outcome, err := f.relay.Handle(context.Background(), request("modo auto"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimeout, outcome)
	assert.Equal(t, "✅ Ativando modo automático...", f.sender.Sent()[0].Text)
	assert.Equal(t, 0, f.limiter.Len())

	// The mode switch consumed no cooldown.
	outcome, err = f.relay.Handle(context.Background(), request("liberar"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimeout, outcome)
	f.mqttClient.AssertExpectations(t)
}

func TestRelay_AckFailureStops(t *testing.T) {
	f := newRelayFixture(time.Second)
	f.sender.On("SendText", mock.Anything, int64(42), mock.Anything, mock.Anything).Return(errors.New("chat down"))

	outcome, err := f.relay.Handle(context.Background(), request("manual"))

	assert.Error(t, err)
	assert.Equal(t, OutcomeAborted, outcome)
	assert.Equal(t, 0, f.correlator.Pending())
	f.mqttClient.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRelay_PublishErrorStillWaits(t *testing.T) {
	f := newRelayFixture(30 * time.Millisecond)
	f.sender.On("SendText", mock.Anything, int64(42), mock.Anything, mock.Anything).Return(nil)
	f.mqttClient.On("Publish", testTopic, byte(0), false, commands.TokenManual).Return(mocks.NewToken(errors.New("not connected")))

	outcome, err := f.relay.Handle(context.Background(), request("modo manual"))

	require.NoError(t, err)
	assert.Equal(t, OutcomeTimeout, outcome)
}

func TestRelay_CancelledWhileWaiting(t *testing.T) {
	f := newRelayFixture(time.Second)
	f.sender.On("SendText", mock.Anything, int64(42), mock.Anything, mock.Anything).Return(nil)
	f.mqttClient.On("Publish", testTopic, byte(0), false, commands.TokenLiberar).Return(mocks.NewToken(nil))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		assert.Eventually(t, func() bool { return f.correlator.Pending() == 1 }, time.Second, time.Millisecond)
		cancel()
	}()

	outcome, err := f.relay.Handle(ctx, request("liberar"))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomeAborted, outcome)
	// Only the acknowledgment went out.
	assert.Len(t, f.sender.Sent(), 1)
}

func TestRelay_DispatchReturnsBeforeStatus(t *testing.T) {
	f := newRelayFixture(time.Second)
	f.sender.On("SendText", mock.Anything, int64(42), mock.Anything, mock.Anything).Return(nil)
	f.mqttClient.On("Publish", testTopic, byte(0), false, commands.TokenAuto).Return(mocks.NewToken(nil)).Once()

	outcome, pending, err := f.relay.Dispatch(context.Background(), request("modo auto"))

	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, OutcomePending, outcome)
	assert.Equal(t, commands.TokenAuto, pending.Command)
	assert.Equal(t, 1, f.correlator.Pending())
	require.Len(t, f.sender.Sent(), 1)
	f.mqttClient.AssertExpectations(t)

	f.correlator.Deliver(validStatus)
	outcome, err = f.relay.Await(context.Background(), pending)

	require.NoError(t, err)
	assert.Equal(t, OutcomeStatus, outcome)
	assert.Len(t, f.sender.Sent(), 2)
}

func TestRelay_DispatchTerminalOutcomes(t *testing.T) {
	f := newRelayFixture(time.Second)
	f.sender.On("SendText", mock.Anything, int64(42), mock.Anything, mock.Anything).Return(nil)

	outcome, pending, err := f.relay.Dispatch(context.Background(), request("xyz"))

	assert.NoError(t, err)
	assert.Nil(t, pending)
	assert.Equal(t, OutcomeNotUnderstood, outcome)
}

func TestRelay_Greet(t *testing.T) {
	f := newRelayFixture(time.Second)
	f.sender.On("SendText", mock.Anything, int64(7), commands.GreetingText(), true).Return(nil)

	assert.NoError(t, f.relay.Greet(context.Background(), 7))
	f.sender.AssertExpectations(t)
}

func TestFormatStatus(t *testing.T) {
	status := models.Status{State: "recolhido", Mode: "", Humidity: 55.5, Motor: nil}

	out := FormatStatus(status)

	assert.Equal(t, "📊 *Status do Varal*\n"+
		"• Estado: *recolhido*\n"+
		"• Modo: *-*\n"+
		"• Umidade: *55.5*\n"+
		"• Motor: *-*", out)
}

func TestFormatStatus_LargeNumbers(t *testing.T) {
	status, err := models.ParseStatus([]byte(`{"estado":1000000,"modo":"auto","umidade":1234567,"motor":0}`))
	require.NoError(t, err)

	out := FormatStatus(status)

	assert.Contains(t, out, "• Estado: *1000000*")
	assert.Contains(t, out, "• Umidade: *1234567*")
	assert.Contains(t, out, "• Motor: *0*")
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "pending", OutcomePending.String())
	assert.Equal(t, "status", OutcomeStatus.String())
	assert.Equal(t, "timeout", OutcomeTimeout.String())
	assert.Equal(t, "rate_limited", OutcomeRateLimited.String())
	assert.Equal(t, "not_understood", OutcomeNotUnderstood.String())
	assert.Equal(t, "aborted", OutcomeAborted.String())
}
