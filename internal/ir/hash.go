package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainEvent is the domain prefix for dispatch IDs.
// The version suffix leaves room for a future algorithm change.
const DomainEvent = "formsync/event/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the content-addressed ID of a dispatched event.
// The same session, seq and event always produce the same ID, which makes
// journal writes idempotent and replay comparable.
func EventID(session string, seq int64, ev Event) (string, error) {
	payload, err := EncodeValue(ev.Payload)
	if err != nil {
		return "", fmt.Errorf("EventID: encode payload: %w", err)
	}

	canonical, err := MarshalCanonical(map[string]any{
		"session": session,
		"seq":     seq,
		"source":  ev.Source,
		"kind":    ev.Kind,
		"payload": string(payload),
	})
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainEvent, canonical), nil
}
