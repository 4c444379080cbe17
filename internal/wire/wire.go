// Package wire implements the length-prefixed little-endian packet format
// used on the socket wire: a 4-byte header followed by a payload whose
// shape depends on protocol_id.
package wire

import (
	"encoding/binary"
	"math"

	"github.com/griffith06/MMORPG-Server/internal/constants"
)

// Header is the common 4-byte frame header.
type Header struct {
	Size       uint16 // total framed size, including this header
	ProtocolID uint16
}

// MarshalHeader writes the header into buf[0:4].
func MarshalHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint16(buf[0:2], h.Size)
	binary.LittleEndian.PutUint16(buf[2:4], h.ProtocolID)
}

// UnmarshalHeader reads a header from buf[0:4]. Callers must ensure
// len(buf) >= constants.PacketHeaderSize.
func UnmarshalHeader(buf []byte) Header {
	return Header{
		Size:       binary.LittleEndian.Uint16(buf[0:2]),
		ProtocolID: binary.LittleEndian.Uint16(buf[2:4]),
	}
}

// ValidSize reports whether a header's size field is within the frame
// bounds the core accepts.
func ValidSize(size uint16) bool {
	return size >= constants.MinPacketSize && size <= constants.MaxPacketSize
}

// MovePacket is PKT_MOVE's payload, 24 bytes after the 4-byte header (28
// bytes total on the wire).
type MovePacket struct {
	ClientID  uint32
	X, Y      float32
	VX, VY    float32
	Timestamp uint32
}

const moveWireSize = 4 + 4 + 4 + 4 + 4 + 4 // header-relative payload size

// MarshalMove writes the full framed PKT_MOVE packet (header + payload)
// into buf, which must be at least 28 bytes.
func MarshalMove(buf []byte, p MovePacket) {
	MarshalHeader(buf, Header{Size: constants.PacketHeaderSize + moveWireSize, ProtocolID: constants.PktMove})
	b := buf[constants.PacketHeaderSize:]
	binary.LittleEndian.PutUint32(b[0:4], p.ClientID)
	binary.LittleEndian.PutUint32(b[4:8], math.Float32bits(p.X))
	binary.LittleEndian.PutUint32(b[8:12], math.Float32bits(p.Y))
	binary.LittleEndian.PutUint32(b[12:16], math.Float32bits(p.VX))
	binary.LittleEndian.PutUint32(b[16:20], math.Float32bits(p.VY))
	binary.LittleEndian.PutUint32(b[20:24], p.Timestamp)
}

// UnmarshalMove reads a PKT_MOVE payload from buf (payload only, header
// already stripped). buf must be at least 24 bytes.
func UnmarshalMove(buf []byte) MovePacket {
	return MovePacket{
		ClientID:  binary.LittleEndian.Uint32(buf[0:4]),
		X:         math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])),
		Y:         math.Float32frombits(binary.LittleEndian.Uint32(buf[8:12])),
		VX:        math.Float32frombits(binary.LittleEndian.Uint32(buf[12:16])),
		VY:        math.Float32frombits(binary.LittleEndian.Uint32(buf[16:20])),
		Timestamp: binary.LittleEndian.Uint32(buf[20:24]),
	}
}

// LoginReqPacket is PKT_LOGIN_REQ's payload: packed to 1-byte alignment in
// the original, 17 bytes (8+8+1).
type LoginReqPacket struct {
	USN          uint64
	Token        uint64
	IsReconnect  bool
}

const loginReqWireSize = 8 + 8 + 1

func MarshalLoginReq(buf []byte, p LoginReqPacket) {
	MarshalHeader(buf, Header{Size: constants.PacketHeaderSize + loginReqWireSize, ProtocolID: constants.PktLoginReq})
	b := buf[constants.PacketHeaderSize:]
	binary.LittleEndian.PutUint64(b[0:8], p.USN)
	binary.LittleEndian.PutUint64(b[8:16], p.Token)
	if p.IsReconnect {
		b[16] = 1
	} else {
		b[16] = 0
	}
}

func UnmarshalLoginReq(buf []byte) LoginReqPacket {
	return LoginReqPacket{
		USN:         binary.LittleEndian.Uint64(buf[0:8]),
		Token:       binary.LittleEndian.Uint64(buf[8:16]),
		IsReconnect: buf[16] != 0,
	}
}

// LoginResPacket is PKT_LOGIN_RES's payload: 17 bytes (8+8+1).
type LoginResPacket struct {
	SessionID uint64
	Token     uint64
	Success   bool
}

const loginResWireSize = 8 + 8 + 1

func MarshalLoginRes(buf []byte, p LoginResPacket) {
	MarshalHeader(buf, Header{Size: constants.PacketHeaderSize + loginResWireSize, ProtocolID: constants.PktLoginRes})
	b := buf[constants.PacketHeaderSize:]
	binary.LittleEndian.PutUint64(b[0:8], p.SessionID)
	binary.LittleEndian.PutUint64(b[8:16], p.Token)
	if p.Success {
		b[16] = 1
	} else {
		b[16] = 0
	}
}

func UnmarshalLoginRes(buf []byte) LoginResPacket {
	return LoginResPacket{
		SessionID: binary.LittleEndian.Uint64(buf[0:8]),
		Token:     binary.LittleEndian.Uint64(buf[8:16]),
		Success:   buf[16] != 0,
	}
}

// LoginFailReason and KickReason mirror the original's reserved enums.
type LoginFailReason uint8

const (
	LoginFailUnknown LoginFailReason = iota
	LoginFailBadCredentials
	LoginFailServerFull
)

type KickReason uint8

const (
	KickUnknown KickReason = iota
	KickIdle
	KickAdmin
)

// LoginFailPacket and KickPacket are reserved wire types: defined per
// spec.md but never constructed or dispatched by the core.
type LoginFailPacket struct {
	Reason LoginFailReason
}

type KickPacket struct {
	Reason KickReason
}

func MarshalLoginFail(buf []byte, p LoginFailPacket) []byte {
	buf[0] = byte(p.Reason)
	return buf[:1]
}

func MarshalKick(buf []byte, p KickPacket) []byte {
	buf[0] = byte(p.Reason)
	return buf[:1]
}
