package common

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dVer/lib/docstore"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
//
// Documents travel as their JSON encoding (docstore.Encode) so that every
// serializer transports them unchanged.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Collection string   `json:"collection,omitempty"` // Used for: all document operations
	Key        string   `json:"key,omitempty"`        // Used for: Get, Replace, Remove and all versioned operations
	Prefix     string   `json:"prefix,omitempty"`     // Used for: Scan
	Expected   int64    `json:"expected,omitempty"`   // Used for: ReplaceIf, RemoveIf (request), versioned operations (version)
	ChangedBy  string   `json:"changedBy,omitempty"`  // Used for: VUpdate, VDelete
	Doc        []byte   `json:"doc,omitempty"`        // Used for: Insert, Replace, VCreate, VUpdate (request), Get, VGet (response)
	Docs       [][]byte `json:"docs,omitempty"`       // Used for: Scan, VHistory (response)

	// Response only fields
	Ok   bool             `json:"ok,omitempty"`   // Used for: Get, VGet responses
	Err  string           `json:"err,omitempty"`  // Empty if no error, otherwise contains the error message
	Code docstore.RetCode `json:"code,omitempty"` // Return code of a store error
	Kind string           `json:"kind,omitempty"` // Name of a versioning error kind (see versioning.KindOf)
	Op   string           `json:"op,omitempty"`   // Failed operation of a versioning error

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Unused, can be used for additional Adapters
}

// IsError reports whether the message carries an error.
func (m *Message) IsError() bool {
	return m.MsgType == MsgTError || m.Err != "" || m.Kind != ""
}

// --------------------------------------------------------------------------
// Message Factory Functions (document store)
// --------------------------------------------------------------------------

// NewGetRequest creates a new Get request
func NewGetRequest(collection, key string) *Message {
	return &Message{
		MsgType:    MsgTDocGet,
		Collection: collection,
		Key:        key,
	}
}

// NewGetResponse creates a new Get response. A missing document is an error.
func NewGetResponse(doc []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTDocGet,
		Doc:     doc,
		Ok:      err == nil,
	}
	SetError(msg, err)
	return msg
}

// NewInsertRequest creates a new Insert request
func NewInsertRequest(collection string, doc []byte) *Message {
	return &Message{
		MsgType:    MsgTDocInsert,
		Collection: collection,
		Doc:        doc,
	}
}

// NewInsertResponse creates a new Insert response
func NewInsertResponse(err error) *Message {
	return newEmptyResponse(MsgTDocInsert, err)
}

// NewReplaceRequest creates a new Replace request
func NewReplaceRequest(collection, key string, doc []byte) *Message {
	return &Message{
		MsgType:    MsgTDocReplace,
		Collection: collection,
		Key:        key,
		Doc:        doc,
	}
}

// NewReplaceResponse creates a new Replace response
func NewReplaceResponse(err error) *Message {
	return newEmptyResponse(MsgTDocReplace, err)
}

// NewReplaceIfRequest creates a new ReplaceIfVersion request
func NewReplaceIfRequest(collection, key string, expected int64, doc []byte) *Message {
	return &Message{
		MsgType:    MsgTDocReplaceIf,
		Collection: collection,
		Key:        key,
		Expected:   expected,
		Doc:        doc,
	}
}

// NewReplaceIfResponse creates a new ReplaceIfVersion response
func NewReplaceIfResponse(err error) *Message {
	return newEmptyResponse(MsgTDocReplaceIf, err)
}

// NewRemoveRequest creates a new Remove request
func NewRemoveRequest(collection, key string) *Message {
	return &Message{
		MsgType:    MsgTDocRemove,
		Collection: collection,
		Key:        key,
	}
}

// NewRemoveResponse creates a new Remove response
func NewRemoveResponse(err error) *Message {
	return newEmptyResponse(MsgTDocRemove, err)
}

// NewRemoveIfRequest creates a new RemoveIfVersion request
func NewRemoveIfRequest(collection, key string, expected int64) *Message {
	return &Message{
		MsgType:    MsgTDocRemoveIf,
		Collection: collection,
		Key:        key,
		Expected:   expected,
	}
}

// NewRemoveIfResponse creates a new RemoveIfVersion response
func NewRemoveIfResponse(err error) *Message {
	return newEmptyResponse(MsgTDocRemoveIf, err)
}

// NewScanRequest creates a new Scan request
func NewScanRequest(collection, prefix string) *Message {
	return &Message{
		MsgType:    MsgTDocScan,
		Collection: collection,
		Prefix:     prefix,
	}
}

// NewScanResponse creates a new Scan response
func NewScanResponse(docs [][]byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTDocScan,
		Docs:    docs,
	}
	SetError(msg, err)
	return msg
}

// --------------------------------------------------------------------------
// Message Factory Functions (versioned collections)
// --------------------------------------------------------------------------

// NewVCreateRequest creates a new versioned Create request. An empty id lets the server assign one.
func NewVCreateRequest(collection, id string, payload []byte) *Message {
	return &Message{
		MsgType:    MsgTVerCreate,
		Collection: collection,
		Key:        id,
		Doc:        payload,
	}
}

// NewVUpdateRequest creates a new versioned Update request
func NewVUpdateRequest(collection, id string, version int64, changedBy string, payload []byte) *Message {
	return &Message{
		MsgType:    MsgTVerUpdate,
		Collection: collection,
		Key:        id,
		Expected:   version,
		ChangedBy:  changedBy,
		Doc:        payload,
	}
}

// NewVDeleteRequest creates a new versioned Delete request
func NewVDeleteRequest(collection, id string, version int64, changedBy string) *Message {
	return &Message{
		MsgType:    MsgTVerDelete,
		Collection: collection,
		Key:        id,
		Expected:   version,
		ChangedBy:  changedBy,
	}
}

// NewVMutationResponse creates the response of a versioned Create, Update or Delete.
// It carries the id and the new version of the record.
func NewVMutationResponse(msgType MessageType, id string, version int64, err error) *Message {
	msg := &Message{
		MsgType:  msgType,
		Key:      id,
		Expected: version,
	}
	SetError(msg, err)
	return msg
}

// NewVGetRequest creates a new versioned Get request
func NewVGetRequest(collection, id string) *Message {
	return &Message{
		MsgType:    MsgTVerGet,
		Collection: collection,
		Key:        id,
	}
}

// NewVGetResponse creates a new versioned Get response, doc is the encoded live document
func NewVGetResponse(doc []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTVerGet,
		Doc:     doc,
		Ok:      err == nil,
	}
	SetError(msg, err)
	return msg
}

// NewVHistoryRequest creates a new versioned History request
func NewVHistoryRequest(collection, id string) *Message {
	return &Message{
		MsgType:    MsgTVerHistory,
		Collection: collection,
		Key:        id,
	}
}

// NewVHistoryResponse creates a new versioned History response, docs are the encoded history documents
func NewVHistoryResponse(docs [][]byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTVerHistory,
		Docs:    docs,
	}
	SetError(msg, err)
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

func newEmptyResponse(msgType MessageType, err error) *Message {
	msg := &Message{MsgType: msgType}
	SetError(msg, err)
	return msg
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTSuccess:      "success",
	MsgTError:        "error",
	MsgTDocGet:       "get",
	MsgTDocInsert:    "insert",
	MsgTDocReplace:   "replace",
	MsgTDocReplaceIf: "replaceIf",
	MsgTDocRemove:    "remove",
	MsgTDocRemoveIf:  "removeIf",
	MsgTDocScan:      "scan",
	MsgTVerCreate:    "vCreate",
	MsgTVerUpdate:    "vUpdate",
	MsgTVerDelete:    "vDelete",
	MsgTVerGet:       "vGet",
	MsgTVerHistory:   "vHistory",
	MsgTCustom:       "custom",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to MessageType
	for msgType, name := range messageTypeNames {
		if name == s {
			*t = msgType
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IDocStore operations

	MsgTDocGet       // Get a document by key
	MsgTDocInsert    // Insert a new document
	MsgTDocReplace   // Replace a document
	MsgTDocReplaceIf // Replace a document if its version matches
	MsgTDocRemove    // Remove a document
	MsgTDocRemoveIf  // Remove a document if its version matches
	MsgTDocScan      // List documents by key prefix

	// Versioned collection operations

	MsgTVerCreate  // Create a versioned record
	MsgTVerUpdate  // Update a versioned record
	MsgTVerDelete  // Delete a versioned record
	MsgTVerGet     // Read the live record
	MsgTVerHistory // Read the history of a record

	// Custom operations

	MsgTCustom // Custom operation type
)
