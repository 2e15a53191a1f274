package ocpp

import "time"

// WebSocket subprotocol names, as negotiated in the Sec-WebSocket-Protocol
// header during the upgrade handshake.
const (
	Subprotocol16  = "ocpp1.6"
	Subprotocol201 = "ocpp2.0.1"
)

// Subprotocols returns every protocol version this runtime can carry.
func Subprotocols() []string {
	return []string{Subprotocol16, Subprotocol201}
}

// VersionGroup maps a subprotocol name to the schema directory group used by
// the payload validator. Unknown protocols map to the empty string.
func VersionGroup(proto string) string {
	switch proto {
	case Subprotocol16:
		return "ocpp16"
	case Subprotocol201:
		return "ocpp201"
	}
	return ""
}

// Actions with engine-level significance. The full OCPP action catalogue is
// application data and lives outside this package.
const (
	ActionBootNotification = "BootNotification"
	ActionHeartbeat        = "Heartbeat"
)

// ISOTime formats a timestamp the way OCPP payloads expect (ISO 8601, UTC,
// millisecond precision).
func ISOTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
