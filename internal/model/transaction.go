package model

import "time"

// TransactionType categorizes a detected real-estate transaction.
// The empty value means the type could not be determined.
type TransactionType string

// Transaction type constants.
const (
	TypePurchase TransactionType = "purchase"
	TypeSale     TransactionType = "sale"
	TypeLease    TransactionType = "lease"
)

// Valid reports whether t is a known transaction type or unset.
func (t TransactionType) Valid() bool {
	switch t {
	case TypePurchase, TypeSale, TypeLease, "":
		return true
	}
	return false
}

// Stage is the lifecycle stage of a detected transaction. The empty value
// means the stage could not be determined.
type Stage string

// Transaction stage constants.
const (
	StageProspecting Stage = "prospecting"
	StageActive      Stage = "active"
	StagePending     Stage = "pending"
	StageClosing     Stage = "closing"
	StageClosed      Stage = "closed"
)

// Valid reports whether s is a known stage or unset.
func (s Stage) Valid() bool {
	switch s {
	case StageProspecting, StageActive, StagePending, StageClosing, StageClosed, "":
		return true
	}
	return false
}

// DateRange is the span covered by a transaction's member communications.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DetectedTransaction is a cluster of related communications proposed as one
// real-estate transaction. CommunicationIDs only ever reference messages whose
// IsRealEstateRelated flag is true. Role assignments are attached once, during
// role extraction; after that the value is never mutated.
type DetectedTransaction struct {
	DateRange        DateRange        `json:"dateRange"`
	ID               string           `json:"id"`
	PropertyAddress  string           `json:"propertyAddress"`
	Summary          string           `json:"summary"`
	Type             TransactionType  `json:"transactionType,omitempty"`
	Stage            Stage            `json:"stage,omitempty"`
	Method           ExtractionMethod `json:"extractionMethod"`
	CommunicationIDs []string         `json:"communicationIds"`
	Roles            []RoleAssignment `json:"suggestedRoles"`
	Confidence       float64          `json:"confidence"`
}
