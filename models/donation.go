package models

import "time"

type DonorType string

const (
	DonorIndividual   DonorType = "individual"
	DonorOrganization DonorType = "organization"
	DonorAlumni       DonorType = "alumni"
)

func (t DonorType) Valid() bool {
	switch t {
	case DonorIndividual, DonorOrganization, DonorAlumni:
		return true
	}
	return false
}

// Donation is an append-only ledger entry.
type Donation struct {
	ID          int64     `json:"id"`
	DonorName   string    `json:"donor_name"`
	DonorType   DonorType `json:"donor_type"`
	AmountCents int64     `json:"amount_cents"`
	RecordedBy  int64     `json:"recorded_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type DonationLedger struct {
	Donations  []Donation `json:"donations"`
	TotalCents int64      `json:"total_cents"`
}
