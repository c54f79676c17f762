// Package audit signs ledger audit entries so the trail is tamper
// evident even if storage is bypassed.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/veridian-systems/veridian/internal/models"
)

type Signer struct {
	secretKey []byte
}

func NewSigner(secretKey string) *Signer {
	return &Signer{
		secretKey: []byte(secretKey),
	}
}

// NewEntry builds a signed audit entry for an action on a resource.
func (s *Signer) NewEntry(actorID, action, resource, resourceID string, at time.Time) *models.AuditEntry {
	entry := &models.AuditEntry{
		ID:         uuid.New().String(),
		Timestamp:  at.UTC(),
		ActorID:    actorID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
	}
	entry.Signature = s.sign(entry)
	return entry
}

func (s *Signer) sign(entry *models.AuditEntry) string {
	payload := entry.ID + entry.Timestamp.Format(time.RFC3339Nano) +
		entry.ActorID + entry.Action + entry.Resource + entry.ResourceID
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether entry's signature matches its contents.
func (s *Signer) Verify(entry *models.AuditEntry) bool {
	expected := s.sign(entry)
	return hmac.Equal([]byte(expected), []byte(entry.Signature))
}
