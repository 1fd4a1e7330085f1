// Package client implements the RPC clients of dVer.
//
//   - NewRPCDocStore returns a docstore.IDocStore whose operations run on a remote store.
//     A versioning.Guard can be built on top of it, in that case the guard runs locally.
//
//   - NewRPCVersionedCollection returns a versioning.Collection whose operations run
//     through the guard of the server. Errors come back as *versioning.Error with the
//     kind, operation, id and version of the server side error.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Endpoints:     []string{"localhost:8080"},
//	  TimeoutSecond: 5,
//	  RetryCount:    3,
//	}
//
//	pages, err := client.NewRPCVersionedCollection(1, "pages", config, http.NewHttpClientTransport(), serializer.NewJSONSerializer())
//	if err != nil {
//	  return err
//	}
//	defer pages.Close()
//
//	rec := &versioning.LiveRecord{Payload: map[string]any{"title": "hello"}}
//	if err := pages.Create(ctx, rec); err != nil {
//	  return err
//	}
//	rec.Payload["title"] = "hello world"
//	err = pages.Update(ctx, rec, "alice") // fails with ErrVersionConflict if someone was faster
//
// All clients are safe for concurrent use.
package client
