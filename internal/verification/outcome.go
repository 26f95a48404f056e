// Package verification runs the scan pipeline: the ordered sequence of
// checks that turns a raw scanned payload into one decisive outcome.
package verification

import "encoding/json"

// Outcome is the decisive result of one scan. The set is closed; a scan that
// cannot be decided (a store outage, say) is an error, never an outcome.
type Outcome string

const (
	OutcomeVerified               Outcome = "verified"
	OutcomeCounterfeit            Outcome = "counterfeit"
	OutcomeRevoked                Outcome = "revoked"
	OutcomeExpired                Outcome = "expired"
	OutcomeUnverifiedCatalogEntry Outcome = "unverified_catalog_entry"
	OutcomeUnknownIssuer          Outcome = "unknown_issuer"
	OutcomeUnknownSubject         Outcome = "unknown_subject"
	OutcomeMalformedInput         Outcome = "malformed_input"
)

func (o Outcome) String() string { return string(o) }

// Genuine reports whether the scan established an authentic, catalog-approved,
// in-date product.
func (o Outcome) Genuine() bool { return o == OutcomeVerified }

// Signature states recorded in Detail. A malformed signature encoding and a
// well-formed signature that fails the check are both "not verified" but must
// stay distinguishable in the audit trail.
const (
	SignatureValid     = "valid"
	SignatureMismatch  = "mismatch"
	SignatureMalformed = "malformed"
	SignatureMissing   = "missing"
)

// Detail records what each pipeline step found, enough to reconstruct the
// decision without re-running the scan against live state.
type Detail struct {
	ParseError       string `json:"parse_error,omitempty"`
	IssuerID         string `json:"issuer_id,omitempty"`
	IssuerState      string `json:"issuer_state,omitempty"`
	KeyRevoked       bool   `json:"key_revoked,omitempty"`
	RevocationReason string `json:"revocation_reason,omitempty"`
	SignatureState   string `json:"signature_state,omitempty"`
	MedicineID       string `json:"medicine_id,omitempty"`
	CatalogState     string `json:"catalog_state,omitempty"`
	ExpiryDate       string `json:"expiry_date,omitempty"`
	Note             string `json:"note,omitempty"`
}

func (d Detail) encode() string {
	b, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	return string(b)
}

// Result is what a scanner gets back.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Detail  Detail  `json:"detail"`
}
