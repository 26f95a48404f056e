// Package credential mints and stores signed product credentials. A
// credential binds one catalog entry to the identity that vouches for it; the
// signed payload is what ends up inside the printed QR code.
package credential

import (
	"time"

	"pharmatrust/internal/medicine"
	"pharmatrust/internal/signing"
	id "pharmatrust/pkg/domain"
)

// Payload field names as they appear on the wire. Verification resolves the
// issuer and subject from these, so they are part of the public contract.
const (
	FieldMedicineID   = "medicine_id"
	FieldMedicineName = "medicine_name"
	FieldBatchNo      = "batch_no"
	FieldMfgDate      = "mfg_date"
	FieldExpiryDate   = "expiry_date"
	FieldSellerID     = "seller_id"
	FieldIssuedAt     = "issued_at"
	FieldBatchNote    = "batch_note"
)

// BuildPayload assembles the flat payload that gets canonically encoded and
// signed. The signature field is added afterwards by the signer and is never
// part of this map.
func BuildPayload(med medicine.Medicine, issuerID id.IdentityID, issuedAt time.Time, batchNote string) map[string]any {
	payload := map[string]any{
		FieldMedicineID:   med.ID.String(),
		FieldMedicineName: med.Name,
		FieldBatchNo:      med.BatchNo,
		FieldMfgDate:      med.MfgDate.Format(medicine.DateFormat),
		FieldExpiryDate:   med.ExpiryDate.Format(medicine.DateFormat),
		FieldSellerID:     issuerID.String(),
		FieldIssuedAt:     issuedAt.UTC().Format(time.RFC3339),
	}
	if batchNote != "" {
		payload[FieldBatchNote] = batchNote
	}
	return payload
}

// Record is one issued credential. Payload holds the canonical encoding of
// the unsigned payload; Signature is the base64 DER signature over exactly
// those bytes. Records are immutable except for the revocation fields.
type Record struct {
	ID            id.CredentialID
	MedicineID    id.MedicineID
	IssuerID      id.IdentityID
	Payload       []byte
	Signature     string
	IssuedAt      time.Time
	Revoked       bool
	RevokedAt     *time.Time
	RevokedReason string
}

// Envelope returns the payload as scanners receive it: the signed fields plus
// the detached signature folded back in.
func (r Record) Envelope() (map[string]any, error) {
	payload, err := signing.DecodeObject(r.Payload)
	if err != nil {
		return nil, err
	}
	payload[signing.SignatureField] = r.Signature
	return payload, nil
}
