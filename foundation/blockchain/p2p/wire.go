// Package p2p implements the protocol engine that maintains peer
// connections, dispatches inbound messages and drives propagation.
package p2p

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Magic identifies a frame as belonging to this network.
const Magic uint32 = 0x4B4F4254

// MaxPayloadBytes bounds the payload an engine is willing to read.
const MaxPayloadBytes = 10 << 20

// MsgType tags each frame with the message it carries.
type MsgType byte

// Set of messages that flow between peers.
const (
	MsgVersion MsgType = iota + 1
	MsgVerack
	MsgPing
	MsgPong
	MsgGetAddr
	MsgAddr
	MsgGetHeight
	MsgHeight
	MsgGetBlocks
	MsgGetHeaders
	MsgHeaders
	MsgInv
	MsgGetData
	MsgBlock
	MsgTx
	MsgNewBlock
	MsgNewTransaction
)

var msgNames = map[MsgType]string{
	MsgVersion:        "version",
	MsgVerack:         "verack",
	MsgPing:           "ping",
	MsgPong:           "pong",
	MsgGetAddr:        "getaddr",
	MsgAddr:           "addr",
	MsgGetHeight:      "getheight",
	MsgHeight:         "height",
	MsgGetBlocks:      "getblocks",
	MsgGetHeaders:     "getheaders",
	MsgHeaders:        "headers",
	MsgInv:            "inv",
	MsgGetData:        "getdata",
	MsgBlock:          "block",
	MsgTx:             "tx",
	MsgNewBlock:       "newblock",
	MsgNewTransaction: "newtransaction",
}

// String implements the fmt.Stringer interface.
func (mt MsgType) String() string {
	if name, exists := msgNames[mt]; exists {
		return name
	}
	return fmt.Sprintf("unknown(%d)", byte(mt))
}

// Set of wire level errors.
var (
	ErrBadMagic    = errors.New("frame does not carry the network magic")
	ErrOversized   = errors.New("frame payload exceeds the maximum size")
	ErrUnknownType = errors.New("frame carries an unknown message type")
)

// Frame header layout: 4 bytes magic, 1 byte message type, 4 bytes
// big-endian payload length.
const headerSize = 9

// WriteMessage encodes the payload to JSON and writes one framed
// message to the stream.
func WriteMessage(w io.Writer, msgType MsgType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", msgType, err)
	}

	if len(data) > MaxPayloadBytes {
		return fmt.Errorf("%s payload of %d bytes: %w", msgType, len(data), ErrOversized)
	}

	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[0:4], Magic)
	header[4] = byte(msgType)
	binary.BigEndian.PutUint32(header[5:9], uint32(len(data)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write %s header: %w", msgType, err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s payload: %w", msgType, err)
	}

	return nil
}

// ReadMessage reads one framed message from the stream, returning the
// message type and the raw JSON payload.
func ReadMessage(r io.Reader) (MsgType, []byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, fmt.Errorf("read header: %w", err)
	}

	if binary.BigEndian.Uint32(header[0:4]) != Magic {
		return 0, nil, ErrBadMagic
	}

	msgType := MsgType(header[4])
	if _, exists := msgNames[msgType]; !exists {
		return 0, nil, fmt.Errorf("type %d: %w", header[4], ErrUnknownType)
	}

	size := binary.BigEndian.Uint32(header[5:9])
	if size > MaxPayloadBytes {
		return 0, nil, fmt.Errorf("%s payload of %d bytes: %w", msgType, size, ErrOversized)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return 0, nil, fmt.Errorf("read %s payload: %w", msgType, err)
	}

	return msgType, data, nil
}
