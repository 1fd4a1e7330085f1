package internal

import (
	"encoding/binary"
	"fmt"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTInsert           CommandType = iota // Insert a document if its key does not exist.
	CommandTReplace                             // Replace an existing document.
	CommandTReplaceIfVersion                    // Replace an existing document if its version matches.
	CommandTRemove                              // Remove an existing document.
	CommandTRemoveIfVersion                     // Remove an existing document if its version matches.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTInsert:
		return "Insert"
	case CommandTReplace:
		return "Replace"
	case CommandTReplaceIfVersion:
		return "ReplaceIfVersion"
	case CommandTRemove:
		return "Remove"
	case CommandTRemoveIfVersion:
		return "RemoveIfVersion"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// Command represents a command to be executed by the state machine (a single entry in the raft log)
type Command struct {
	Type       CommandType
	Expected   int64 // expected version, only used by the conditional commands
	Collection string
	Key        string
	Doc        []byte // JSON encoded document (optional)
}

// headerSize is Type + Expected + CollectionLen + KeyLen
const headerSize = 1 + 8 + 4 + 4

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	return headerSize + len(command.Collection) + len(command.Key) + len(command.Doc)
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 8 bytes for the expected version (big endian, two's complement),
// 4 bytes for collection length (big endian),
// 4 bytes for key length (big endian),
// N bytes for collection data,
// N bytes for key data,
// N bytes for document data (optional)
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint64(result[1:9], uint64(command.Expected))
	binary.BigEndian.PutUint32(result[9:13], uint32(len(command.Collection)))
	binary.BigEndian.PutUint32(result[13:17], uint32(len(command.Key)))

	offset := headerSize
	offset += copy(result[offset:], command.Collection)
	offset += copy(result[offset:], command.Key)
	copy(result[offset:], command.Doc)

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	command.Expected = int64(binary.BigEndian.Uint64(data[1:9]))
	collectionLen := int(binary.BigEndian.Uint32(data[9:13]))
	keyLen := int(binary.BigEndian.Uint32(data[13:17]))

	if len(data) < headerSize+collectionLen+keyLen {
		return fmt.Errorf("data too short for collection of length %d and key of length %d", collectionLen, keyLen)
	}

	offset := headerSize
	command.Collection = string(data[offset : offset+collectionLen])
	offset += collectionLen
	command.Key = string(data[offset : offset+keyLen])
	offset += keyLen

	if len(data) > offset {
		docLen := len(data) - offset
		// Reuse existing buffer if possible to reduce allocations
		if command.Doc == nil || cap(command.Doc) < docLen {
			command.Doc = make([]byte, docLen)
		} else {
			command.Doc = command.Doc[:docLen]
		}
		copy(command.Doc, data[offset:])
	} else {
		command.Doc = nil
	}

	return nil
}
