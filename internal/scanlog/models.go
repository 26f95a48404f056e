// Package scanlog is the append-only audit trail of verification attempts.
// Every scan, genuine or counterfeit or garbage, leaves exactly one entry.
package scanlog

import (
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	id "pharmatrust/pkg/domain"
)

// Entry is one recorded verification attempt. ScannerUserID is nil for
// anonymous scans; CredentialID is nil when the payload never identified one.
type Entry struct {
	ID            uuid.UUID
	ScannerUserID *id.UserID
	CredentialID  *id.CredentialID
	RawPayload    []byte
	Outcome       string
	Detail        string
	ClientIP      string
	UserAgent     string
	Browser       string
	Platform      string
	At            time.Time
}

// WithClientInfo fills the derived browser and platform columns from the
// raw User-Agent header.
func (e Entry) WithClientInfo(clientIP, rawUA string) Entry {
	e.ClientIP = clientIP
	e.UserAgent = rawUA
	if rawUA != "" {
		ua := useragent.New(rawUA)
		name, version := ua.Browser()
		e.Browser = name
		if version != "" {
			e.Browser = name + " " + version
		}
		e.Platform = ua.OS()
	}
	return e
}
