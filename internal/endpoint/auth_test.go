package endpoint

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/voltgrid/ocppd/internal/chain"
	"github.com/voltgrid/ocppd/internal/credentials"
	"github.com/voltgrid/ocppd/pkg/ocpp"
)

func TestAuthRequestOneShot(t *testing.T) {
	a := &AuthRequest{ClientID: "CP001"}
	if a.Decided() {
		t.Fatal("fresh request already decided")
	}

	a.Accept(ocpp.Subprotocol16)
	a.Reject(http.StatusForbidden) // ordering error, ignored
	a.Accept(ocpp.Subprotocol201)  // ordering error, ignored

	accepted, protocol, _ := a.Result()
	if !accepted || protocol != ocpp.Subprotocol16 {
		t.Errorf("Result() = (%v, %q), want first Accept to stand", accepted, protocol)
	}

	b := &AuthRequest{ClientID: "CP002"}
	b.Reject(http.StatusUnauthorized)
	b.Accept(ocpp.Subprotocol16)
	accepted, _, status := b.Result()
	if accepted || status != http.StatusUnauthorized {
		t.Errorf("Result() = (%v, %d), want first Reject to stand", accepted, status)
	}
}

func TestDefaultDecisionNegotiatesSubprotocol(t *testing.T) {
	tests := []struct {
		name         string
		supported    []string
		offered      []string
		wantAccepted bool
		wantProtocol string
		wantStatus   int
	}{
		{
			name:         "first_offered_wins",
			supported:    []string{ocpp.Subprotocol16, ocpp.Subprotocol201},
			offered:      []string{ocpp.Subprotocol201, ocpp.Subprotocol16},
			wantAccepted: true,
			wantProtocol: ocpp.Subprotocol201,
		},
		{
			name:         "skips_unsupported",
			supported:    []string{ocpp.Subprotocol16},
			offered:      []string{ocpp.Subprotocol201, ocpp.Subprotocol16},
			wantAccepted: true,
			wantProtocol: ocpp.Subprotocol16,
		},
		{
			name:       "no_overlap",
			supported:  []string{ocpp.Subprotocol16},
			offered:    []string{"ocpp2.1"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "nothing_offered",
			supported:  []string{ocpp.Subprotocol16},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := New(Options{Protocols: tt.supported})
			a := &AuthRequest{ClientID: "CP001", Protocols: tt.offered}
			accepted, protocol, status, err := ep.Authenticate(context.Background(), a)
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if accepted != tt.wantAccepted {
				t.Fatalf("accepted = %v, want %v", accepted, tt.wantAccepted)
			}
			if accepted && protocol != tt.wantProtocol {
				t.Errorf("protocol = %q, want %q", protocol, tt.wantProtocol)
			}
			if !accepted && status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
		})
	}
}

func TestBasicAuth(t *testing.T) {
	resolver := credentials.Static{"CP001": "s3cret"}

	tests := []struct {
		name       string
		clientID   string
		password   []byte
		wantStatus int // 0 means accepted
	}{
		{"correct", "CP001", []byte("s3cret"), 0},
		{"wrong_password", "CP001", []byte("nope"), http.StatusUnauthorized},
		{"absent_password", "CP001", nil, http.StatusUnauthorized},
		{"unknown_client", "CP999", []byte("s3cret"), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := New(Options{BasicAuth: true, Credentials: resolver})
			a := &AuthRequest{
				ClientID:  tt.clientID,
				Protocols: []string{ocpp.Subprotocol16},
				Password:  tt.password,
			}
			accepted, _, status, err := ep.Authenticate(context.Background(), a)
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if tt.wantStatus == 0 && !accepted {
				t.Fatalf("rejected with %d, want accepted", status)
			}
			if tt.wantStatus != 0 {
				if accepted {
					t.Fatal("accepted, want rejected")
				}
				if status != tt.wantStatus {
					t.Errorf("status = %d, want %d", status, tt.wantStatus)
				}
			}
		})
	}
}

func TestCertificateAuth(t *testing.T) {
	tests := []struct {
		name         string
		presented    bool
		verified     bool
		wantAccepted bool
	}{
		{"verified", true, true, true},
		{"presented_unverified", true, false, false},
		{"absent", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := New(Options{CertificateAuth: true})
			a := &AuthRequest{
				ClientID:      "CP001",
				Protocols:     []string{ocpp.Subprotocol16},
				CertPresented: tt.presented,
				CertVerified:  tt.verified,
			}
			accepted, _, status, err := ep.Authenticate(context.Background(), a)
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if accepted != tt.wantAccepted {
				t.Fatalf("accepted = %v (status %d), want %v", accepted, status, tt.wantAccepted)
			}
		})
	}
}

func TestAuthChainFaultRejectsAcceptedAttempt(t *testing.T) {
	ep := New(Options{})

	ep.HandleAuth(chain.Func[*AuthRequest](func(_ context.Context, a *AuthRequest) error {
		a.Accept(ocpp.Subprotocol16)
		return nil
	}))
	ep.HandleAuth(chain.Func[*AuthRequest](func(_ context.Context, a *AuthRequest) error {
		return errors.New("directory lookup failed")
	}))

	a := &AuthRequest{ClientID: "CP001", Protocols: []string{ocpp.Subprotocol16}}
	accepted, _, status, err := ep.Authenticate(context.Background(), a)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if accepted {
		t.Fatal("attempt accepted although the auth chain faulted")
	}
	if status != 500 {
		t.Errorf("status = %d, want 500", status)
	}
	if ok, _ := ep.store.Has(context.Background(), "CP001"); ok {
		t.Error("session created for a faulted attempt")
	}
}

func TestUserAuthHandlerOverridesDefault(t *testing.T) {
	ep := New(Options{})

	// A user handler can settle the attempt before the default decision.
	remove := ep.HandleAuth(chain.Func[*AuthRequest](func(_ context.Context, a *AuthRequest) error {
		if a.RemoteAddr == "10.0.0.66:4444" {
			a.Reject(http.StatusForbidden)
			return chain.ErrStop
		}
		return nil
	}))

	a := &AuthRequest{
		ClientID:   "CP001",
		Protocols:  []string{ocpp.Subprotocol16},
		RemoteAddr: "10.0.0.66:4444",
	}
	accepted, _, status, err := ep.Authenticate(context.Background(), a)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if accepted || status != http.StatusForbidden {
		t.Fatalf("accepted=%v status=%d, want user rejection to stand", accepted, status)
	}

	// Once removed the default decision applies again.
	remove()
	b := &AuthRequest{
		ClientID:   "CP001",
		Protocols:  []string{ocpp.Subprotocol16},
		RemoteAddr: "10.0.0.66:4444",
	}
	accepted, protocol, _, err := ep.Authenticate(context.Background(), b)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if !accepted || protocol != ocpp.Subprotocol16 {
		t.Fatalf("accepted=%v protocol=%q, want default acceptance", accepted, protocol)
	}
}
