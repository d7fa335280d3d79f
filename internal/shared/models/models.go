package models

import (
	"strings"
	"time"
)

// Address identifies a caller. Addresses compare case-insensitively, so
// always build them through ParseAddress or Normalize.
type Address string

// ParseAddress trims and lower-cases s.
func ParseAddress(s string) Address {
	return Address(strings.ToLower(strings.TrimSpace(s)))
}

func (a Address) Normalize() Address { return ParseAddress(string(a)) }

func (a Address) String() string { return string(a) }

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleRecorder Role = "RECORDER"
)

// ParseRole accepts the role name in any case, with or without the
// "_ROLE" suffix. ok is false for unknown roles.
func ParseRole(s string) (Role, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "_ROLE")
	switch Role(s) {
	case RoleAdmin, "DEFAULT_ADMIN":
		return RoleAdmin, true
	case RoleRecorder:
		return RoleRecorder, true
	}
	return "", false
}

type Record struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Erased    bool      `json:"erased"`
	Owner     Address   `json:"owner"`
}

type NFTBinding struct {
	RecordID int64     `json:"record_id"`
	Holder   Address   `json:"holder"`
	Issuer   Address   `json:"issuer"`
	IssuedAt time.Time `json:"issued_at"`
}

type EventKind string

const (
	EventRecordCreated EventKind = "RecordCreated"
	EventRecordUpdated EventKind = "RecordUpdated"
	EventRecordErased  EventKind = "RecordErased"
	EventNFTIssued     EventKind = "NFTIssued"
	EventRoleGranted   EventKind = "RoleGranted"
	EventRoleRevoked   EventKind = "RoleRevoked"
)

// Event is appended for every state change. RecordID is zero for role events.
type Event struct {
	Seq      int64     `json:"seq"`
	Kind     EventKind `json:"kind"`
	RecordID int64     `json:"record_id,omitempty"`
	Content  string    `json:"content,omitempty"`
	Actor    Address   `json:"actor,omitempty"`
	Subject  Address   `json:"subject,omitempty"`
	Role     Role      `json:"role,omitempty"`
	At       time.Time `json:"at"`
}

type Account struct {
	Address   Address   `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	RefreshToken string    `json:"refresh_token,omitempty"`
}

// Envelope wraps every API response body.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	Error   string `json:"error,omitempty"`
}
