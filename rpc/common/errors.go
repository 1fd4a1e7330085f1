package common

import (
	"errors"

	"github.com/ValentinKolb/dVer/lib/docstore"
	"github.com/ValentinKolb/dVer/lib/versioning"
)

// --------------------------------------------------------------------------
// Error transport
// --------------------------------------------------------------------------

/*
	Errors are flattened into the response message and rebuilt on the client:

	  *docstore.Error    -> Err = Msg, Code = Code
	  *versioning.Error  -> Kind, Op, Key = ID, Expected = Version, Err (and Code) from the cause
	  any other error    -> Err = err.Error(), Code = RetCInternalError

	errors.Is against the sentinels of both packages therefore works on both sides of the wire.
*/

// SetError writes err into msg. A nil err leaves msg untouched.
func SetError(msg *Message, err error) {
	if err == nil {
		return
	}

	var verr *versioning.Error
	if errors.As(err, &verr) {
		msg.Kind = versioning.KindOf(verr)
		msg.Op = verr.Op
		msg.Key = verr.ID
		msg.Expected = verr.Version
		if verr.Err != nil && !setStoreError(msg, verr.Err) {
			msg.Err = verr.Err.Error()
		}
		return
	}
	if !setStoreError(msg, err) {
		msg.Err = err.Error()
		msg.Code = docstore.RetCInternalError
	}
}

func setStoreError(msg *Message, err error) bool {
	var derr *docstore.Error
	if !errors.As(err, &derr) {
		return false
	}
	msg.Err = derr.Msg
	msg.Code = derr.Code
	return true
}

// ErrorOf rebuilds the error carried by msg, or returns nil if msg is no error response.
func ErrorOf(msg *Message) error {
	if !msg.IsError() {
		return nil
	}

	if msg.Kind == "" {
		code := msg.Code
		if code == docstore.RetCSuccess {
			code = docstore.RetCInternalError
		}
		if msg.Err == "" {
			return docstore.NewError(code, "unknown remote error")
		}
		return docstore.NewError(code, msg.Err)
	}

	var cause error
	switch {
	case msg.Err == "":
	case msg.Code != docstore.RetCSuccess:
		cause = docstore.NewError(msg.Code, msg.Err)
	default:
		cause = errors.New(msg.Err)
	}
	return &versioning.Error{
		Kind:    versioning.KindByName(msg.Kind),
		Op:      msg.Op,
		ID:      msg.Key,
		Version: msg.Expected,
		Err:     cause,
	}
}
