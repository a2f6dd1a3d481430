package network

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// HeaderSize is the fixed prefix of every packet: 2-byte message id and
// 2-byte payload length, both big endian.
const HeaderSize = 4

var (
	// ErrPayloadTooLarge is returned when a payload does not fit the 16-bit length field.
	ErrPayloadTooLarge = errors.New("payload exceeds 65535 bytes")
	// ErrMalformedPacket wraps every Decode failure. The frame is bad, the
	// connection is not.
	ErrMalformedPacket = errors.New("malformed packet")
)

type Packet struct {
	MsgID  uint16
	Data   []byte
	Length uint16
}

// Encode frames data under msgID.
func Encode(msgID uint16, data []byte) ([]byte, error) {
	if len(data) > math.MaxUint16 {
		return nil, ErrPayloadTooLarge
	}
	packet := make([]byte, HeaderSize+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[HeaderSize:], data)
	return packet, nil
}

// Decode parses one framed packet. Trailing bytes beyond the declared length are ignored.
func Decode(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d byte frame: %w", ErrMalformedPacket, len(data), io.ErrShortBuffer)
	}

	msgID := binary.BigEndian.Uint16(data[0:2])
	length := binary.BigEndian.Uint16(data[2:4])

	if len(data) < HeaderSize+int(length) {
		return nil, fmt.Errorf("%w: declared %d payload bytes, got %d: %w",
			ErrMalformedPacket, length, len(data)-HeaderSize, io.ErrShortBuffer)
	}

	return &Packet{
		MsgID:  msgID,
		Length: length,
		Data:   data[HeaderSize : HeaderSize+int(length)],
	}, nil
}

// EncodeJSON marshals v and frames it under msgID.
func EncodeJSON(msgID uint16, v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Encode(msgID, data)
}

// Unmarshal decodes the packet payload into v. An empty payload leaves v untouched.
func (p *Packet) Unmarshal(v interface{}) error {
	if len(p.Data) == 0 {
		return nil
	}
	return json.Unmarshal(p.Data, v)
}
