package session

import "encoding/json"

// MessageType discriminates the JSON frames exchanged on a device's
// bidirectional channel, per spec.md §6.
type MessageType string

const (
	MsgRegistration    MessageType = "registration"
	MsgHeartbeat       MessageType = "heartbeat"
	MsgStatus          MessageType = "status"
	MsgCommandAck      MessageType = "command_ack"
	MsgAudioChunk      MessageType = "audio_chunk"
	MsgAudioResponseEnd MessageType = "audio_response_end"
	MsgCommand         MessageType = "command"
)

// envelope holds only the discriminator. decodeInbound does not use it:
// inbound frames are decoded in a single pass into InboundFrame.
type envelope struct {
	MessageType MessageType `json:"message_type"`
}

// InboundFrame is the union of every field a device may send. Only the
// fields relevant to MessageType are populated; the rest are zero values.
// Payload/Metadata are kept as opaque maps per spec.md §9 ("dynamically
// typed message payloads").
type InboundFrame struct {
	MessageType MessageType    `json:"message_type"`
	DeviceType  string         `json:"device_type"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	CommandID   string         `json:"command_id,omitempty"`
	Status      string         `json:"status,omitempty"`
	Response    map[string]any `json:"response,omitempty"`
}

// decodeInbound parses a raw frame with one unmarshal into InboundFrame;
// callers switch on its MessageType field without a second unmarshal.
func decodeInbound(raw []byte) (InboundFrame, error) {
	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return InboundFrame{}, err
	}
	return frame, nil
}

// OutboundCommand is the "command" frame sent server -> device.
type OutboundCommand struct {
	MessageType MessageType    `json:"message_type"`
	CommandID   string         `json:"command_id"`
	CommandName string         `json:"command_name"`
	Payload     map[string]any `json:"payload"`
}

// NewCommandFrame builds the outbound command envelope per spec.md §6.
func NewCommandFrame(commandID, commandName string, payload map[string]any) OutboundCommand {
	return OutboundCommand{
		MessageType: MsgCommand,
		CommandID:   commandID,
		CommandName: commandName,
		Payload:     payload,
	}
}

// OutboundAudioChunk is one "audio_chunk" frame sent server -> device.
type OutboundAudioChunk struct {
	MessageType MessageType `json:"message_type"`
	AudioBase64 string      `json:"audio_base64"`
	IsLast      bool        `json:"is_last"`
	SampleRate  int         `json:"samplerate"`
	Format      string      `json:"format"`
	Index       int         `json:"index"`
	Total       int         `json:"total"`
}
