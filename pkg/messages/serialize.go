package messages

import (
	"errors"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
)

// ErrMalformedMessage is returned for frames that do not decode to an envelope.
var ErrMalformedMessage = errors.New("malformed message")

// maxDecodedSize bounds the memory a single frame may decompress into.
const maxDecodedSize = 8 << 20

var (
	encoder = mustEncoder()
	decoder = mustDecoder()
)

func mustEncoder() *zstd.Encoder {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic(fmt.Sprintf("failed to create zstd encoder: %v", err))
	}
	return enc
}

func mustDecoder() *zstd.Decoder {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize))
	if err != nil {
		panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
	}
	return dec
}

// SerializeMessage encodes m as a zstd-compressed flatbuffers envelope.
func SerializeMessage(m *Message) ([]byte, error) {
	b, err := SerializeMessageFlatbuffer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %v", err)
	}
	return encoder.EncodeAll(b, nil), nil
}

func DeserializeMessage(data []byte) (*Message, error) {
	b, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress message: %w", err)
	}

	message, err := DeserializeMessageFlatbuffer(b)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize message: %w", err)
	}

	return message, nil
}

func SerializeMessageFlatbuffer(m *Message) ([]byte, error) {
	if m.Type == "" {
		return nil, fmt.Errorf("message type is required")
	}
	builder := flatbuffers.NewBuilder(len(m.Payload) + 64)
	builder.Finish(buildEnvelope(builder, m))
	return builder.FinishedBytes(), nil
}

func DeserializeMessageFlatbuffer(b []byte) (message *Message, err error) {
	if len(b) < flatbuffers.SizeUOffsetT {
		return nil, ErrMalformedMessage
	}
	// out-of-range offsets in a corrupt buffer panic inside the flatbuffers reader
	defer func() {
		if r := recover(); r != nil {
			message = nil
			err = fmt.Errorf("%w: %v", ErrMalformedMessage, r)
		}
	}()

	e := getRootAsEnvelope(b, 0)
	msgType := e.Type()
	if len(msgType) == 0 {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}

	message = &Message{
		Type:         MessageType(msgType),
		InvocationID: string(e.InvocationID()),
		Timestamp:    e.Timestamp(),
	}
	if payload := e.PayloadBytes(); len(payload) > 0 {
		message.Payload = append([]byte(nil), payload...)
	}
	return message, nil
}
