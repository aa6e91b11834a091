// Package share defines the share record published for every evaluated
// submission and its versioned binary encoding.
package share

import (
	"encoding/binary"

	"google.golang.org/protobuf/proto"

	"github.com/bardlex/beampool/pkg/errors"
	pb "github.com/bardlex/beampool/proto/beampool/v1"
)

// Version tags the encoding of Share records. Downstream consumers reject
// records whose tag they do not know.
const Version uint32 = 0x0bea0001

// Share is one submission attempt and its outcome. Status starts at
// StatusRejectNoReason and is assigned once, after validation.
type Share struct {
	Version      uint32
	WorkerHashID int64
	UserID       int32
	Status       Status
	Timestamp    int64
	IP           string
	InputPrefix  uint64
	ShareDiff    uint64
	BlockBits    uint32
	Height       uint32
	Nonce        uint64
	SessionID    uint32
}

// MarshalWithVersion encodes the share as a little endian version tag
// followed by a ShareBeam protobuf message
func (s *Share) MarshalWithVersion() ([]byte, error) {
	if s.Version != Version {
		return nil, errors.New(errors.ErrorTypeSerialization, "share_marshal", "unsupported share version").
			WithContext("version", s.Version)
	}

	msg := &pb.ShareBeam{
		Version:      s.Version,
		WorkerHashId: s.WorkerHashID,
		UserId:       s.UserID,
		Status:       int32(s.Status),
		Timestamp:    s.Timestamp,
		Ip:           s.IP,
		InputPrefix:  s.InputPrefix,
		ShareDiff:    s.ShareDiff,
		BlockBits:    s.BlockBits,
		Height:       s.Height,
		Nonce:        s.Nonce,
		SessionId:    s.SessionID,
	}

	b := make([]byte, 4, 4+proto.Size(msg))
	binary.LittleEndian.PutUint32(b, s.Version)

	b, err := proto.MarshalOptions{}.MarshalAppend(b, msg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSerialization, "share_marshal", "failed to marshal share")
	}
	return b, nil
}

// UnmarshalWithVersion decodes a record produced by MarshalWithVersion.
// Unknown fields are skipped.
func UnmarshalWithVersion(data []byte) (*Share, error) {
	if len(data) < 4 {
		return nil, errors.New(errors.ErrorTypeSerialization, "share_unmarshal", "record too short")
	}
	version := binary.LittleEndian.Uint32(data)
	if version != Version {
		return nil, errors.New(errors.ErrorTypeSerialization, "share_unmarshal", "unsupported share version").
			WithContext("version", version)
	}

	var msg pb.ShareBeam
	if err := proto.Unmarshal(data[4:], &msg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSerialization, "share_unmarshal", "malformed record")
	}

	return &Share{
		Version:      version,
		WorkerHashID: msg.GetWorkerHashId(),
		UserID:       msg.GetUserId(),
		Status:       Status(msg.GetStatus()),
		Timestamp:    msg.GetTimestamp(),
		IP:           msg.GetIp(),
		InputPrefix:  msg.GetInputPrefix(),
		ShareDiff:    msg.GetShareDiff(),
		BlockBits:    msg.GetBlockBits(),
		Height:       msg.GetHeight(),
		Nonce:        msg.GetNonce(),
		SessionID:    msg.GetSessionId(),
	}, nil
}
