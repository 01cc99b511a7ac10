package transport

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformedFrame is returned when a received message is not a valid frame.
var ErrMalformedFrame = errors.New("transport: malformed frame")

// Kind identifies what a frame carries.
type Kind uint8

const (
	KindUnknown Kind = iota

	// outbound
	KindOpenView
	KindUpdateView
	KindCloseView
	KindViewIcons
	KindCustomCmd

	// inbound
	KindViewOpened
	KindViewOpenFailed
	KindViewUpdated
	KindViewClosed
	KindIconsSent
	KindAck
)

var kindNames = [...]string{
	KindUnknown:        "unknown",
	KindOpenView:       "open_view",
	KindUpdateView:     "update_view",
	KindCloseView:      "close_view",
	KindViewIcons:      "view_icons",
	KindCustomCmd:      "custom_cmd",
	KindViewOpened:     "view_opened",
	KindViewOpenFailed: "view_open_failed",
	KindViewUpdated:    "view_updated",
	KindViewClosed:     "view_closed",
	KindIconsSent:      "icons_sent",
	KindAck:            "ack",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Frame is one message exchanged with the bridge. Payload is the view JSON
// text for view frames and an encoded caps container for custom commands.
type Frame struct {
	Kind    Kind
	Channel string
	Seq     uint64
	Payload []byte
	Status  int32
}

const (
	fieldKind    protowire.Number = 1
	fieldChannel protowire.Number = 2
	fieldSeq     protowire.Number = 3
	fieldPayload protowire.Number = 4
	fieldStatus  protowire.Number = 5
)

// MarshalBinary encodes the frame as protobuf wire fields. Zero-valued fields
// are omitted.
func (f *Frame) MarshalBinary() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.Kind))
	if f.Channel != "" {
		b = protowire.AppendTag(b, fieldChannel, protowire.BytesType)
		b = protowire.AppendString(b, f.Channel)
	}
	if f.Seq != 0 {
		b = protowire.AppendTag(b, fieldSeq, protowire.VarintType)
		b = protowire.AppendVarint(b, f.Seq)
	}
	if len(f.Payload) > 0 {
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, f.Payload)
	}
	if f.Status != 0 {
		b = protowire.AppendTag(b, fieldStatus, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(f.Status)))
	}
	return b, nil
}

// UnmarshalBinary decodes a frame, skipping fields it does not know.
func (f *Frame) UnmarshalBinary(b []byte) error {
	*f = Frame{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldKind && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("%w: kind: %v", ErrMalformedFrame, protowire.ParseError(m))
			}
			f.Kind = Kind(v)
			n = m
		case num == fieldChannel && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return fmt.Errorf("%w: channel: %v", ErrMalformedFrame, protowire.ParseError(m))
			}
			f.Channel = v
			n = m
		case num == fieldSeq && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("%w: seq: %v", ErrMalformedFrame, protowire.ParseError(m))
			}
			f.Seq = v
			n = m
		case num == fieldPayload && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("%w: payload: %v", ErrMalformedFrame, protowire.ParseError(m))
			}
			f.Payload = append([]byte(nil), v...)
			n = m
		case num == fieldStatus && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("%w: status: %v", ErrMalformedFrame, protowire.ParseError(m))
			}
			f.Status = int32(int64(v))
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformedFrame, num, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	if f.Kind == KindUnknown {
		return fmt.Errorf("%w: missing kind", ErrMalformedFrame)
	}
	return nil
}
