package services

import (
	"errors"
	"testing"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/benmeehan/varal-bridge/internal/correlator"
	"github.com/benmeehan/varal-bridge/internal/mocks"
)

// TestStatusService_Start_Success tests the successful start of the StatusService.
func TestStatusService_Start_Success(t *testing.T) {
	mockMQTTClient := new(mocks.MQTTClient)
	mockMQTTClient.On("Subscribe", testTopic, byte(0), mock.Anything).Return(mocks.NewToken(nil))

	corr := correlator.NewCorrelator(zerolog.Nop())
	ss := NewStatusService(testTopic, 0, mockMQTTClient, corr.HandleMessage, zerolog.Nop())

	err := ss.Start()
	assert.NoError(t, err)

	err = ss.Start()
	assert.EqualError(t, err, "status service is already running")
	mockMQTTClient.AssertExpectations(t)
}

// TestStatusService_Start_Failure tests a failed subscription.
func TestStatusService_Start_Failure(t *testing.T) {
	mockMQTTClient := new(mocks.MQTTClient)
	mockMQTTClient.On("Subscribe", testTopic, byte(0), mock.Anything).Return(mocks.NewToken(errors.New("subscribe failed")))

	ss := NewStatusService(testTopic, 0, mockMQTTClient, nil, zerolog.Nop())

	err := ss.Start()
	assert.EqualError(t, err, "subscribe failed")
}

// TestStatusService_Stop tests unsubscribing, including a second Stop.
func TestStatusService_Stop(t *testing.T) {
	mockMQTTClient := new(mocks.MQTTClient)
	mockMQTTClient.On("Subscribe", testTopic, byte(0), mock.Anything).Return(mocks.NewToken(nil))
	mockMQTTClient.On("Unsubscribe", []string{testTopic}).Return(mocks.NewToken(nil))

	ss := NewStatusService(testTopic, 0, mockMQTTClient, nil, zerolog.Nop())
	assert.NoError(t, ss.Start())

	assert.NoError(t, ss.Stop())
	assert.EqualError(t, ss.Stop(), "status service is not running")
	mockMQTTClient.AssertExpectations(t)
}

// TestStatusService_Stop_Failure tests a failed unsubscribe.
func TestStatusService_Stop_Failure(t *testing.T) {
	mockMQTTClient := new(mocks.MQTTClient)
	mockMQTTClient.On("Subscribe", testTopic, byte(0), mock.Anything).Return(mocks.NewToken(nil))
	mockMQTTClient.On("Unsubscribe", []string{testTopic}).Return(mocks.NewToken(errors.New("unsubscribe failed")))

	ss := NewStatusService(testTopic, 0, mockMQTTClient, nil, zerolog.Nop())
	assert.NoError(t, ss.Start())

	assert.EqualError(t, ss.Stop(), "unsubscribe failed")
}

// TestStatusService_RoutesMessagesToCorrelator drives the subscribed handler
// the way the MQTT client would.
func TestStatusService_RoutesMessagesToCorrelator(t *testing.T) {
	corr := correlator.NewCorrelator(zerolog.Nop())
	waiter := corr.Register("42", time.Second)

	var subscribed MQTT.MessageHandler
	mockMQTTClient := new(mocks.MQTTClient)
	mockMQTTClient.On("Subscribe", testTopic, byte(0), mock.Anything).
		Return(mocks.NewToken(nil)).
		Run(func(args mock.Arguments) { subscribed = args.Get(2).(MQTT.MessageHandler) })

	ss := NewStatusService(testTopic, 0, mockMQTTClient, corr.HandleMessage, zerolog.Nop())
	assert.NoError(t, ss.Start())

	subscribed(nil, mocks.NewMessage(testTopic, []byte("auto")))
	assert.Equal(t, 1, corr.Pending())

	subscribed(nil, mocks.NewMessage(testTopic, validStatus))
	select {
	case <-waiter.Done():
	case <-time.After(time.Second):
		t.Fatal("waiter not resolved")
	}
}
