package protocol

import "fmt"

// DecodeError describes a payload that does not decode to exactly one
// message. Kind is KindNone when the discriminant itself was unreadable.
type DecodeError struct {
	Kind Kind
	Err  error
}

// Error returns the error message.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: decode %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Encode encodes a message payload: the kind byte followed by its fields.
func Encode(m Message) []byte {
	e := NewEncoder()
	EncodeTo(e, m)
	return e.Bytes()
}

// EncodeTo encodes a message payload using the provided encoder.
func EncodeTo(e *Encoder, m Message) {
	if m == nil {
		m = None{}
	}
	e.WriteByte(byte(m.Kind()))
	m.encodeFields(e)
}

// Decode decodes exactly one message from b. Trailing bytes are an error.
func Decode(b []byte) (Message, error) {
	if len(b) == 0 {
		return nil, &DecodeError{Err: ErrEmptyPayload}
	}

	d := NewDecoder(b)
	kb, _ := d.ReadByte()
	kind := Kind(kb)

	m, err := decodeFields(d, kind)
	if err != nil {
		return nil, &DecodeError{Kind: kind, Err: err}
	}
	if !d.EOF() {
		return nil, &DecodeError{Kind: kind, Err: ErrTrailingBytes}
	}
	return m, nil
}

func decodeFields(d *Decoder, kind Kind) (Message, error) {
	switch kind {
	case KindNone:
		return None{}, nil

	case KindPing:
		return Ping{}, nil

	case KindPingResult:
		v, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		return PingResult{LatencyMS: v}, nil

	case KindIdentify:
		v, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		return Identify{ID: v}, nil

	case KindRemoveEntity:
		v, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		return RemoveEntity{ID: v}, nil

	case KindSetPosition:
		var m SetPosition
		var err error
		if m.ID, err = d.ReadUint32(); err != nil {
			return nil, err
		}
		if m.Position, err = d.ReadVec3(); err != nil {
			return nil, err
		}
		if m.Rotation, err = d.ReadVec3(); err != nil {
			return nil, err
		}
		return m, nil

	default:
		return nil, ErrUnknownKind
	}
}
