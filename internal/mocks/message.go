package mocks

// Message is a canned MQTT.Message delivered to handlers under test.
type Message struct {
	topic   string
	payload []byte
}

// NewMessage builds a Message for topic carrying payload.
func NewMessage(topic string, payload []byte) *Message {
	return &Message{topic: topic, payload: payload}
}

func (m *Message) Payload() []byte   { return m.payload }
func (m *Message) Topic() string     { return m.topic }
func (m *Message) Duplicate() bool   { return false }
func (m *Message) Qos() byte         { return 0 }
func (m *Message) Retained() bool    { return false }
func (m *Message) MessageID() uint16 { return 1 }
func (m *Message) Ack()              {}
