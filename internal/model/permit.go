package model

import "time"

// Contact is a person attached to a permit filing.
type Contact struct {
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	Role     string `json:"role,omitempty"`
	IsMobile bool   `json:"is_mobile"` // area-code heuristic, not a carrier lookup
}

// Permit is a construction-permit filing. Permits are read-only input to the
// identifier resolver; a permit that cannot be resolved stays unlinked.
type Permit struct {
	PermitNumber string     `json:"permit_number"`
	BBL          string     `json:"bbl,omitempty"` // empty until linked
	JobType      string     `json:"job_type"`
	IssuedAt     *time.Time `json:"issued_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Address      string     `json:"address,omitempty"`
	Block        string     `json:"block"`
	Lot          string     `json:"lot"`
	BoroughCode  string     `json:"borough_code,omitempty"` // derived from permit number prefix
	Units        *int       `json:"units,omitempty"`
	Contacts     []Contact  `json:"contacts,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
