package internal

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name: "Command with collection, key and document",
			command: Command{
				Type:       CommandTInsert,
				Collection: "pages",
				Key:        "testkey",
				Doc:        []byte(`{"_id":"testkey"}`),
			},
			expected: 1 + 8 + 4 + 4 + 5 + 7 + 17, // Type + Expected + CollectionLen + KeyLen + Collection + Key + Doc
		},
		{
			name: "Command without document",
			command: Command{
				Type:       CommandTRemoveIfVersion,
				Expected:   3,
				Collection: "pages",
				Key:        "testkey",
			},
			expected: 1 + 8 + 4 + 4 + 5 + 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size := tt.command.SizeBytes()
			if size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{
			name: "Insert with document",
			command: Command{
				Type:       CommandTInsert,
				Collection: "pages",
				Key:        "p1",
				Doc:        []byte(`{"_id":"p1","_version":1}`),
			},
		},
		{
			name: "Conditional remove without document",
			command: Command{
				Type:       CommandTRemoveIfVersion,
				Expected:   42,
				Collection: "pages",
				Key:        "p1",
			},
		},
		{
			name: "Negative expected version",
			command: Command{
				Type:       CommandTReplaceIfVersion,
				Expected:   -1,
				Collection: "versions",
				Key:        "p1#00000000000000000001",
				Doc:        []byte(`{}`),
			},
		},
		{
			name: "Empty collection and key",
			command: Command{
				Type: CommandTReplace,
				Doc:  []byte(`{"a":1}`),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.command.Serialize()
			if len(data) != tt.command.SizeBytes() {
				t.Fatalf("Serialize() produced %d bytes, SizeBytes() = %d", len(data), tt.command.SizeBytes())
			}

			var got Command
			if err := got.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}
			if got.Type != tt.command.Type {
				t.Errorf("Type = %v, want %v", got.Type, tt.command.Type)
			}
			if got.Expected != tt.command.Expected {
				t.Errorf("Expected = %v, want %v", got.Expected, tt.command.Expected)
			}
			if got.Collection != tt.command.Collection {
				t.Errorf("Collection = %q, want %q", got.Collection, tt.command.Collection)
			}
			if got.Key != tt.command.Key {
				t.Errorf("Key = %q, want %q", got.Key, tt.command.Key)
			}
			if !bytes.Equal(got.Doc, tt.command.Doc) {
				t.Errorf("Doc = %q, want %q", got.Doc, tt.command.Doc)
			}
		})
	}
}

// TestDeserializeErrors tests malformed input
func TestDeserializeErrors(t *testing.T) {
	var cmd Command
	if err := cmd.Deserialize([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short header")
	}

	// header claims a 100 byte key that is not there
	data := make([]byte, headerSize)
	binary.BigEndian.PutUint32(data[13:17], 100)
	if err := cmd.Deserialize(data); err == nil {
		t.Error("expected error for truncated key")
	}
}

// TestDeserializeReusesBuffer checks that an existing document buffer is reused
func TestDeserializeReusesBuffer(t *testing.T) {
	src := Command{Type: CommandTInsert, Key: "k", Doc: []byte("abc")}
	cmd := Command{Doc: make([]byte, 0, 16)}
	buf := cmd.Doc[:1]

	if err := cmd.Deserialize(src.Serialize()); err != nil {
		t.Fatal(err)
	}
	if string(cmd.Doc) != "abc" {
		t.Errorf("Doc = %q", cmd.Doc)
	}
	if &buf[0] != &cmd.Doc[0] {
		t.Error("expected buffer to be reused")
	}
}

func TestCommandTypeString(t *testing.T) {
	if CommandTReplaceIfVersion.String() != "ReplaceIfVersion" {
		t.Errorf("unexpected name %s", CommandTReplaceIfVersion)
	}
	if CommandType(99).String() != "Unknown(99)" {
		t.Errorf("unexpected name %s", CommandType(99))
	}
}
