package domain

import (
	"github.com/google/uuid"

	dErrors "pharmatrust/pkg/domain-errors"
)

// Typed UUID identifiers. Distinct types keep an identity id from being passed
// where a medicine id is expected; the compiler enforces it.
//
// Usage: construct via the Parse* functions at trust boundaries; direct casting
// bypasses validation.
type (
	// IdentityID identifies a seller identity in the KYC lifecycle.
	IdentityID uuid.UUID

	// MedicineID identifies a medicine batch in the trusted catalog.
	MedicineID uuid.UUID

	// CredentialID identifies an issued, signed credential record.
	CredentialID uuid.UUID

	// UserID identifies an authenticated account (scanner or administrator).
	UserID uuid.UUID
)

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be the nil UUID")
	}
	return u, nil
}

// ParseIdentityID constructs an IdentityID from external input.
func ParseIdentityID(s string) (IdentityID, error) {
	u, err := parseUUID(s, "identity id")
	return IdentityID(u), err
}

// ParseMedicineID constructs a MedicineID from external input.
func ParseMedicineID(s string) (MedicineID, error) {
	u, err := parseUUID(s, "medicine id")
	return MedicineID(u), err
}

// ParseCredentialID constructs a CredentialID from external input.
func ParseCredentialID(s string) (CredentialID, error) {
	u, err := parseUUID(s, "credential id")
	return CredentialID(u), err
}

// ParseUserID constructs a UserID from external input.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

// NewIdentityID returns a freshly generated identity id.
func NewIdentityID() IdentityID { return IdentityID(uuid.New()) }

// NewMedicineID returns a freshly generated medicine id.
func NewMedicineID() MedicineID { return MedicineID(uuid.New()) }

// NewCredentialID returns a freshly generated credential id.
func NewCredentialID() CredentialID { return CredentialID(uuid.New()) }

// NewUserID returns a freshly generated user id.
func NewUserID() UserID { return UserID(uuid.New()) }

func (i IdentityID) String() string   { return uuid.UUID(i).String() }
func (i MedicineID) String() string   { return uuid.UUID(i).String() }
func (i CredentialID) String() string { return uuid.UUID(i).String() }
func (i UserID) String() string       { return uuid.UUID(i).String() }

func (i IdentityID) IsNil() bool   { return uuid.UUID(i) == uuid.Nil }
func (i MedicineID) IsNil() bool   { return uuid.UUID(i) == uuid.Nil }
func (i CredentialID) IsNil() bool { return uuid.UUID(i) == uuid.Nil }
func (i UserID) IsNil() bool       { return uuid.UUID(i) == uuid.Nil }

// Text marshaling keeps the canonical UUID string form in JSON and logs;
// defined types do not inherit it from uuid.UUID.

func (i IdentityID) MarshalText() ([]byte, error)   { return []byte(i.String()), nil }
func (i MedicineID) MarshalText() ([]byte, error)   { return []byte(i.String()), nil }
func (i CredentialID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i UserID) MarshalText() ([]byte, error)       { return []byte(i.String()), nil }

func (i *IdentityID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	*i = IdentityID(u)
	return err
}

func (i *MedicineID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	*i = MedicineID(u)
	return err
}

func (i *CredentialID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	*i = CredentialID(u)
	return err
}

func (i *UserID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	*i = UserID(u)
	return err
}
