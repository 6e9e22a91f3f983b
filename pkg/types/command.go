package types

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// type of FSM command
type CommandType uint64

const (
	CommandTypePutObject CommandType = iota + 1
	CommandTypeDeleteObject
)

// interface all FSM commands implement
type Command interface {
	Type() CommandType
}

// writes an object; ModTime is stamped by the leader before the entry is proposed
// so every replica applies the same timestamp
type PutObjectCmd struct {
	Key     string
	Body    []byte
	ModTime time.Time
}

func (c PutObjectCmd) Type() CommandType { return CommandTypePutObject }

// removes an object, missing keys are not an error
type DeleteObjectCmd struct {
	Key string
}

func (c DeleteObjectCmd) Type() CommandType { return CommandTypeDeleteObject }

// protobuf field numbers of a raft log entry
const (
	fieldType    protowire.Number = 1
	fieldKey     protowire.Number = 2
	fieldBody    protowire.Number = 3
	fieldModTime protowire.Number = 4
)

// encodes a command into the protobuf wire format stored in the raft log
func EncodeCommand(cmd Command) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(cmd.Type()))

	switch c := cmd.(type) {
	case PutObjectCmd:
		b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
		b = protowire.AppendString(b, c.Key)
		b = protowire.AppendTag(b, fieldBody, protowire.BytesType)
		b = protowire.AppendBytes(b, c.Body)
		b = protowire.AppendTag(b, fieldModTime, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(c.ModTime.UnixNano()))
	case DeleteObjectCmd:
		b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
		b = protowire.AppendString(b, c.Key)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}

	return b, nil
}

// decodes a raft log entry produced by EncodeCommand
// unknown fields are skipped so newer leaders can add fields
func DecodeCommand(data []byte) (Command, error) {
	var (
		typ     CommandType
		key     string
		body    []byte
		modTime int64
	)

	for len(data) > 0 {
		num, wt, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEntry, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldType && wt == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedEntry, protowire.ParseError(m))
			}
			typ = CommandType(v)
			n = m
		case num == fieldKey && wt == protowire.BytesType:
			v, m := protowire.ConsumeString(data)
			if m < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedEntry, protowire.ParseError(m))
			}
			key = v
			n = m
		case num == fieldBody && wt == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedEntry, protowire.ParseError(m))
			}
			body = append([]byte(nil), v...)
			n = m
		case num == fieldModTime && wt == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedEntry, protowire.ParseError(m))
			}
			modTime = protowire.DecodeZigZag(v)
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, wt, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedEntry, protowire.ParseError(n))
			}
		}
		data = data[n:]
	}

	if key == "" {
		return nil, fmt.Errorf("%w: missing key", ErrMalformedEntry)
	}

	switch typ {
	case CommandTypePutObject:
		return PutObjectCmd{Key: key, Body: body, ModTime: time.Unix(0, modTime).UTC()}, nil
	case CommandTypeDeleteObject:
		return DeleteObjectCmd{Key: key}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCommand, typ)
	}
}
