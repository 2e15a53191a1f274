package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/voltgrid/ocppd/pkg/ocpp"
)

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if ok, _ := store.Has(ctx, "CP001"); ok {
		t.Fatal("Has() = true on empty store")
	}

	s := New("CP001", ocpp.Subprotocol16)
	if err := store.Set(ctx, "CP001", s); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := store.Get(ctx, "CP001")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v, %v", got, ok, err)
	}
	if got != s {
		t.Error("Get() returned a different session")
	}
	if ok, _ := store.Has(ctx, "CP001"); !ok {
		t.Error("Has() = false after Set")
	}

	// nil deletes
	if err := store.Set(ctx, "CP001", nil); err != nil {
		t.Fatalf("Set(nil) error = %v", err)
	}
	if ok, _ := store.Has(ctx, "CP001"); ok {
		t.Error("Has() = true after delete")
	}
	if _, ok, _ := store.Get(ctx, "CP001"); ok {
		t.Error("Get() found a deleted session")
	}
}

func TestMemoryStoreConcurrentKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("CP%03d", n)
			s := New(id, ocpp.Subprotocol16)
			for j := 0; j < 100; j++ {
				store.Set(ctx, id, s)
				store.Get(ctx, id)
				store.Has(ctx, id)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("CP%03d", i)
		if ok, _ := store.Has(ctx, id); !ok {
			t.Errorf("session %s missing after concurrent writes", id)
		}
	}
}

func TestSessionPendingState(t *testing.T) {
	s := New("CP001", ocpp.Subprotocol16)

	if s.PendingInbound() != nil || s.PendingOutbound() != nil {
		t.Fatal("new session has pending calls")
	}

	in := ocpp.NewInboundCall("1", "Heartbeat", nil)
	out := ocpp.NewCall("2", "Reset", nil)
	s.SetPendingInbound(in)
	s.SetPendingOutbound(out)

	// Both directions are independent.
	if s.PendingInbound() != in {
		t.Error("pending inbound lost")
	}
	if s.PendingOutbound() != out {
		t.Error("pending outbound lost")
	}

	s.SetPendingInbound(nil)
	if s.PendingInbound() != nil {
		t.Error("pending inbound not cleared")
	}
	if s.PendingOutbound() != out {
		t.Error("clearing inbound touched outbound")
	}
}

func TestSessionDeactivateIdempotent(t *testing.T) {
	s := New("CP001", ocpp.Subprotocol16)
	if !s.Active() {
		t.Fatal("new session inactive")
	}
	if !s.Deactivate() {
		t.Fatal("first Deactivate() = false")
	}
	if s.Deactivate() {
		t.Error("second Deactivate() = true, want false")
	}
	if s.Active() {
		t.Error("session still active after Deactivate")
	}
}

func TestSessionSnapshot(t *testing.T) {
	s := New("CP001", ocpp.Subprotocol201)
	now := time.Now()
	s.TouchInbound(now)
	s.TouchOutbound(now)

	snap := s.Snapshot()
	if snap.ClientID != "CP001" || snap.Protocol != ocpp.Subprotocol201 || !snap.Active {
		t.Errorf("snapshot = %+v", snap)
	}
	if !snap.LastInboundAt.Equal(now) || !snap.LastOutboundAt.Equal(now) {
		t.Error("snapshot timestamps not captured")
	}
}
