// Package appproto implements the illustrative application-layer protocol
// carried as P2P packet content: a one-byte command code followed by a
// command-specific body. Only the two time-sync commands are defined,
// mirroring the original firmware's application header.
package appproto

import (
	"encoding/binary"
	"fmt"

	"github.com/tinywheel/p2pbot/pkg/p2p"
)

// Application command codes.
const (
	CommandTimeSyncRequest byte = 1
	CommandTimeSyncReply   byte = 2
)

const timeSyncBodyLength = 1 + 8 // command byte + uint64 nanosecond timestamp

// TimeSync carries a single nanosecond timestamp, used by both the
// request and the reply: the reply simply echoes back the edge timestamp
// the requester observed, letting it compute round-trip latency.
type TimeSync struct {
	SyncEdgeLocalTimestampNs uint64
}

// EncodeTimeSyncRequest fills pkt's content with a time-sync request and
// sets its length accordingly. The caller still must call the output
// stream's Commit, which sets the priority and sequence number, to send it.
func EncodeTimeSyncRequest(pkt *p2p.Packet, req TimeSync) {
	encodeTimeSync(pkt, CommandTimeSyncRequest, req)
}

// EncodeTimeSyncReply fills pkt's content with a time-sync reply.
func EncodeTimeSyncReply(pkt *p2p.Packet, reply TimeSync) {
	encodeTimeSync(pkt, CommandTimeSyncReply, reply)
}

func encodeTimeSync(pkt *p2p.Packet, command byte, ts TimeSync) {
	content := pkt.Content()
	content[0] = command
	binary.LittleEndian.PutUint64(content[1:9], ts.SyncEdgeLocalTimestampNs)
	pkt.Header.Length = timeSyncBodyLength
}

// Command returns the command byte of a received (already PrepareToRead'd)
// packet's content.
func Command(pkt *p2p.Packet) (byte, error) {
	content := pkt.WireContent()
	if len(content) < 1 {
		return 0, fmt.Errorf("appproto: empty content")
	}
	return content[0], nil
}

// DecodeTimeSync decodes a time-sync request or reply body. wantCommand
// selects which one the caller expects; the command byte is checked
// against it.
func DecodeTimeSync(pkt *p2p.Packet, wantCommand byte) (TimeSync, error) {
	content := pkt.WireContent()
	if len(content) != timeSyncBodyLength {
		return TimeSync{}, fmt.Errorf("appproto: want %d content bytes, got %d", timeSyncBodyLength, len(content))
	}
	if content[0] != wantCommand {
		return TimeSync{}, fmt.Errorf("appproto: want command %d, got %d", wantCommand, content[0])
	}
	return TimeSync{SyncEdgeLocalTimestampNs: binary.LittleEndian.Uint64(content[1:9])}, nil
}
