package ocpp

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestResponseBindingOneShot(t *testing.T) {
	call := NewInboundCall("1", "Heartbeat", json.RawMessage(`{}`))

	var sent []Message
	call.BindResponse(func(m Message) error {
		sent = append(sent, m)
		return nil
	})

	if err := call.Respond(json.RawMessage(`{"currentTime":"now"}`)); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if !call.Responded() {
		t.Error("Responded() = false after Respond")
	}
	if len(sent) != 1 {
		t.Fatalf("binding invoked %d times, want 1", len(sent))
	}
	if sent[0].Type() != TypeCallResult || sent[0].ID() != "1" {
		t.Errorf("response = %v id %q, want CALLRESULT id 1", sent[0].Type(), sent[0].ID())
	}

	if err := call.Respond(json.RawMessage(`{}`)); !errors.Is(err, ErrResponseAlreadySent) {
		t.Errorf("second Respond error = %v, want ErrResponseAlreadySent", err)
	}
	if err := call.RespondError(ErrInternalError, "x"); !errors.Is(err, ErrResponseAlreadySent) {
		t.Errorf("RespondError after Respond error = %v, want ErrResponseAlreadySent", err)
	}
	if len(sent) != 1 {
		t.Errorf("binding invoked %d times after rejected retries, want 1", len(sent))
	}
}

func TestRespondWithoutBinding(t *testing.T) {
	call := NewInboundCall("1", "Heartbeat", nil)
	if err := call.Respond(nil); !errors.Is(err, ErrNoResponseBinding) {
		t.Errorf("Respond() error = %v, want ErrNoResponseBinding", err)
	}
}

func TestOutboundResponseHandlerOnce(t *testing.T) {
	call := NewCall("x", "Reset", json.RawMessage(`{"type":"Soft"}`))

	var got []Message
	call.OnResponse(func(m Message) { got = append(got, m) })

	res := NewInboundCallResult("x", json.RawMessage(`{"status":"Accepted"}`))
	if err := call.DeliverResponse(res); err != nil {
		t.Fatalf("DeliverResponse() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("handler invoked %d times, want 1", len(got))
	}

	err := call.DeliverResponse(NewInboundCallResult("x", nil))
	if !errors.Is(err, ErrResponseAlreadyTaken) {
		t.Errorf("second DeliverResponse error = %v, want ErrResponseAlreadyTaken", err)
	}
	if len(got) != 1 {
		t.Errorf("handler invoked %d times after second delivery, want 1", len(got))
	}
}

func TestDeliverResponseWithoutHandler(t *testing.T) {
	call := NewCall("x", "Reset", nil)
	err := call.DeliverResponse(NewInboundCallResult("x", nil))
	if !errors.Is(err, ErrNoResponseHandler) {
		t.Errorf("DeliverResponse() error = %v, want ErrNoResponseHandler", err)
	}
}

func TestMarkSentKeepsFirstTimestamp(t *testing.T) {
	msg := NewCallResult("1", nil)
	if !msg.SentAt().IsZero() {
		t.Fatal("SentAt set before send")
	}
	MarkSent(msg)
	first := msg.SentAt()
	if first.IsZero() {
		t.Fatal("SentAt not set after MarkSent")
	}
	MarkSent(msg)
	if !msg.SentAt().Equal(first) {
		t.Error("second MarkSent moved the timestamp")
	}
}

func TestCallErrorIsError(t *testing.T) {
	var err error = NewCallError("9", ErrProtocolError, "id mismatch")
	var ce *CallError
	if !errors.As(err, &ce) {
		t.Fatal("errors.As failed to recover *CallError")
	}
	if ce.Code != ErrProtocolError || ce.ID() != "9" {
		t.Errorf("recovered %s id %q, want ProtocolError id 9", ce.Code, ce.ID())
	}
}

func TestErrorCodeValid(t *testing.T) {
	for _, code := range []ErrorCode{
		ErrFormatViolation, ErrGenericError, ErrInternalError,
		ErrMessageTypeNotSupported, ErrNotImplemented, ErrNotSupported,
		ErrOccurrenceConstraintViolation, ErrPropertyConstraintViolation,
		ErrProtocolError, ErrRpcFrameworkError, ErrSecurityError,
		ErrTypeConstraintViolation,
	} {
		if !code.Valid() {
			t.Errorf("%s reported invalid", code)
		}
	}
	if ErrorCode("NopeError").Valid() {
		t.Error("unknown code reported valid")
	}
}
