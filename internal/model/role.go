package model

// ContactRole identifies a participant's function in a transaction.
type ContactRole string

// Contact role constants.
const (
	RoleBuyer        ContactRole = "buyer"
	RoleSeller       ContactRole = "seller"
	RoleBuyerAgent   ContactRole = "buyer_agent"
	RoleListingAgent ContactRole = "listing_agent"
	RoleLender       ContactRole = "lender"
	RoleTitleOfficer ContactRole = "title_officer"
	RoleInspector    ContactRole = "inspector"
	RoleOther        ContactRole = "other"
)

// Valid reports whether r is one of the known contact roles.
func (r ContactRole) Valid() bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleBuyerAgent, RoleListingAgent,
		RoleLender, RoleTitleOfficer, RoleInspector, RoleOther:
		return true
	}
	return false
}

// RoleAssignment maps a person to a suggested role within one detected
// transaction, with the evidence snippets that support the suggestion.
// RoleAssignments are always nested inside a DetectedTransaction.
type RoleAssignment struct {
	Name       string      `json:"name"`
	Email      string      `json:"email,omitempty"`
	Role       ContactRole `json:"role"`
	Evidence   []string    `json:"evidence,omitempty"`
	Confidence float64     `json:"confidence"`
}

// Contact is a known identity from the user's address book, used to ground
// role extraction so the model maps senders onto existing people instead of
// inventing new ones.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}
