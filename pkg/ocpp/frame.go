package ocpp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeError describes a frame that could not be turned into a Message.
// MessageID holds the correlation id when one could be recovered from the
// frame, otherwise it is empty and the caller must substitute a synthetic id
// before answering.
type DecodeError struct {
	MessageID   string
	Code        ErrorCode
	Description string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("ocpp: decode: %s: %s", e.Code, e.Description)
}

func decodeErr(id string, code ErrorCode, format string, args ...any) *DecodeError {
	return &DecodeError{MessageID: id, Code: code, Description: fmt.Sprintf(format, args...)}
}

var null = json.RawMessage("null")

// Marshal encodes a message into its OCPP-J array frame:
//
//	CALL       [2, id, action, payload]
//	CALLRESULT [3, id, payload]
//	CALLERROR  [4, id, code, description, details]
func Marshal(msg Message) ([]byte, error) {
	var parts []any
	switch m := msg.(type) {
	case *Call:
		parts = []any{TypeCall, m.id, m.Action, orNull(m.Payload)}
	case *CallResult:
		parts = []any{TypeCallResult, m.id, orNull(m.Payload)}
	case *CallError:
		parts = []any{TypeCallError, m.id, m.Code, m.Description, orNull(m.Details)}
	default:
		return nil, fmt.Errorf("ocpp: cannot marshal message type %T", msg)
	}
	return json.Marshal(parts)
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return null
	}
	return raw
}

// decodeString decodes a JSON string element, rejecting any other token.
// json.Unmarshal of the null token into a *string is a silent no-op, so the
// element must be checked before decoding.
func decodeString(raw json.RawMessage, dst *string) bool {
	tok := bytes.TrimSpace(raw)
	if len(tok) == 0 || tok[0] != '"' {
		return false
	}
	return json.Unmarshal(tok, dst) == nil
}

// Unmarshal decodes an OCPP-J array frame into an inbound Message. Failures
// return a *DecodeError carrying the error code to answer with and, where
// recoverable, the frame's message id.
func Unmarshal(data []byte) (Message, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, decodeErr("", ErrRpcFrameworkError, "frame is not a JSON array: %v", err)
	}
	if len(elems) < 2 {
		return nil, decodeErr("", ErrRpcFrameworkError, "frame has %d elements, need at least 2", len(elems))
	}

	// json.Unmarshal of null into an int is a silent no-op too, which would
	// read as type 0.
	var typ int
	if bytes.Equal(bytes.TrimSpace(elems[0]), null) ||
		json.Unmarshal(elems[0], &typ) != nil {
		return nil, decodeErr("", ErrRpcFrameworkError, "message type is not an integer")
	}

	// The id is recovered before the type check so unknown-type answers can
	// still be correlated.
	var id string
	if !decodeString(elems[1], &id) {
		return nil, decodeErr("", ErrRpcFrameworkError, "message id is not a string")
	}

	switch MessageType(typ) {
	case TypeCall:
		if len(elems) != 4 {
			return nil, decodeErr(id, ErrFormatViolation, "CALL frame has %d elements, want 4", len(elems))
		}
		var action string
		if !decodeString(elems[2], &action) {
			return nil, decodeErr(id, ErrFormatViolation, "CALL action is not a string")
		}
		return NewInboundCall(id, action, elems[3]), nil

	case TypeCallResult:
		if len(elems) != 3 {
			return nil, decodeErr(id, ErrFormatViolation, "CALLRESULT frame has %d elements, want 3", len(elems))
		}
		return NewInboundCallResult(id, elems[2]), nil

	case TypeCallError:
		if len(elems) != 5 {
			return nil, decodeErr(id, ErrFormatViolation, "CALLERROR frame has %d elements, want 5", len(elems))
		}
		var code, description string
		if !decodeString(elems[2], &code) {
			return nil, decodeErr(id, ErrFormatViolation, "CALLERROR code is not a string")
		}
		if !decodeString(elems[3], &description) {
			return nil, decodeErr(id, ErrFormatViolation, "CALLERROR description is not a string")
		}
		return NewInboundCallError(id, ErrorCode(code), description, elems[4]), nil
	}

	return nil, decodeErr(id, ErrMessageTypeNotSupported, "unknown message type %d", typ)
}
