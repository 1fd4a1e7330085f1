// Package serializer converts common.Message values to bytes and back.
//
// Two implementations of IRPCSerializer are provided:
//
//   - jsonSerializerImpl: JSON encoding. Message types are written as their names,
//     documents as base64 strings. Human-readable and easy to call with curl.
//
//   - gobSerializerImpl: Go's gob encoding. Smaller for messages carrying many
//     documents (scan and history responses), only usable from Go clients.
//
// Both are stateless and safe for concurrent use.
//
// Usage:
//
//	s := serializer.NewJSONSerializer()
//	data, err := s.Serialize(*common.NewVGetRequest("pages", "p1"))
//	// ... send data ...
//	var resp common.Message
//	err = s.Deserialize(respData, &resp)
package serializer
