package messages

import (
	flatbuffers "github.com/google/flatbuffers/go"
)

// Envelope table layout:
//
//	table Envelope {
//	  type: string;
//	  invocation_id: string;
//	  timestamp: long;
//	  payload: [ubyte];
//	}
const (
	envelopeSlotType = iota
	envelopeSlotInvocationID
	envelopeSlotTimestamp
	envelopeSlotPayload
	envelopeFieldCount
)

type envelope struct {
	_tab flatbuffers.Table
}

func getRootAsEnvelope(buf []byte, offset flatbuffers.UOffsetT) *envelope {
	n := flatbuffers.GetUOffsetT(buf[offset:])
	e := &envelope{}
	e._tab.Bytes = buf
	e._tab.Pos = n + offset
	return e
}

func slotOffset(slot int) flatbuffers.VOffsetT {
	return flatbuffers.VOffsetT(4 + 2*slot)
}

func (rcv *envelope) bytesField(slot int) []byte {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(slotOffset(slot)))
	if o != 0 {
		return rcv._tab.ByteVector(o + rcv._tab.Pos)
	}
	return nil
}

func (rcv *envelope) Type() []byte {
	return rcv.bytesField(envelopeSlotType)
}

func (rcv *envelope) InvocationID() []byte {
	return rcv.bytesField(envelopeSlotInvocationID)
}

func (rcv *envelope) Timestamp() int64 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(slotOffset(envelopeSlotTimestamp)))
	if o != 0 {
		return rcv._tab.GetInt64(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *envelope) PayloadBytes() []byte {
	return rcv.bytesField(envelopeSlotPayload)
}

func buildEnvelope(builder *flatbuffers.Builder, m *Message) flatbuffers.UOffsetT {
	msgType := builder.CreateString(string(m.Type))
	var invocationID flatbuffers.UOffsetT
	if m.InvocationID != "" {
		invocationID = builder.CreateString(m.InvocationID)
	}
	payload := builder.CreateByteVector(m.Payload)

	builder.StartObject(envelopeFieldCount)
	builder.PrependInt64Slot(envelopeSlotTimestamp, m.Timestamp, 0)
	builder.PrependUOffsetTSlot(envelopeSlotPayload, payload, 0)
	if invocationID != 0 {
		builder.PrependUOffsetTSlot(envelopeSlotInvocationID, invocationID, 0)
	}
	builder.PrependUOffsetTSlot(envelopeSlotType, msgType, 0)
	return builder.EndObject()
}
