package intake

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LifecycleState describes where a submission sits in the claim/delete flow.
type LifecycleState = string

const (
	// StateUnclaimed means the claim token is still live and no owner is attached.
	StateUnclaimed LifecycleState = "unclaimed"
	// StateActive means an owner claimed the submission and it is editable.
	StateActive LifecycleState = "active"
	// StateDeleted means the submission was soft deleted. Terminal.
	StateDeleted LifecycleState = "deleted"
)

// DefaultDeleteReason is stored when a delete request carries no reason.
const DefaultDeleteReason = "No reason provided"

// Submission is the intake form row. Rows are created by the external form
// tool; this service only claims, reads, edits, and soft deletes them.
type Submission struct {
	bun.BaseModel `bun:"table:intake_submissions,alias:sub"`

	ID        uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`

	// Claim token is single use: cleared the moment a claim succeeds.
	ClaimToken  string     `bun:"claim_token,nullzero" json:"claim_token,omitempty"`
	ManageToken string     `bun:"manage_token,nullzero" json:"manage_token,omitempty"`
	DeleteToken string     `bun:"delete_token,nullzero" json:"delete_token,omitempty"`
	UserID      *uuid.UUID `bun:"user_id,nullzero,type:uuid" json:"user_id,omitempty"`
	ClaimedAt   *time.Time `bun:"claimed_at,nullzero" json:"claimed_at,omitempty"`

	DeletedAt    *time.Time `bun:"deleted_at,nullzero" json:"deleted_at,omitempty"`
	DeleteReason string     `bun:"delete_reason,nullzero" json:"delete_reason,omitempty"`

	FirstName   string `bun:"first_name,nullzero" json:"first_name,omitempty"`
	Surname     string `bun:"surname,nullzero" json:"surname,omitempty"`
	FatherName  string `bun:"father_name,nullzero" json:"father_name,omitempty"`
	MotherName  string `bun:"mother_name,nullzero" json:"mother_name,omitempty"`
	DateOfBirth string `bun:"date_of_birth,nullzero" json:"date_of_birth,omitempty"`
	City        string `bun:"city,nullzero" json:"city,omitempty"`
	Country     string `bun:"country,nullzero" json:"country,omitempty"`
	Phone       string `bun:"phone,nullzero" json:"phone,omitempty"`
	Email       string `bun:"email,nullzero" json:"email,omitempty"`

	ContactName            string   `bun:"contact_name,nullzero" json:"contact_name,omitempty"`
	PreferredCommunication []string `bun:"preferred_communication,nullzero" json:"preferred_communication,omitempty"`

	Languages     string `bun:"languages,nullzero" json:"languages,omitempty"`
	Gender        string `bun:"gender,nullzero" json:"gender,omitempty"`
	Height        string `bun:"height,nullzero" json:"height,omitempty"`
	Community     string `bun:"community,nullzero" json:"community,omitempty"`
	MaritalStatus string `bun:"marital_status,nullzero" json:"marital_status,omitempty"`
	Children      string `bun:"children,nullzero" json:"children,omitempty"`
	Occupation    string `bun:"occupation,nullzero" json:"occupation,omitempty"`

	TheirOccupation string   `bun:"their_occupation,nullzero" json:"their_occupation,omitempty"`
	TheirCommunity  string   `bun:"their_community,nullzero" json:"their_community,omitempty"`
	TheirLanguages  string   `bun:"their_languages,nullzero" json:"their_languages,omitempty"`
	TheirStatus     []string `bun:"their_status,nullzero" json:"their_status,omitempty"`

	AboutMe    string `bun:"about_me,nullzero" json:"about_me,omitempty"`
	AboutThem  string `bun:"about_them,nullzero" json:"about_them,omitempty"`
	References string `bun:"references,nullzero" json:"references,omitempty"`

	PhotoPath string `bun:"photo_path,nullzero" json:"photo_path,omitempty"`
}

// State derives the lifecycle state from the row's nullable columns.
func (s *Submission) State() LifecycleState {
	if s.DeletedAt != nil {
		return StateDeleted
	}
	if s.UserID != nil {
		return StateActive
	}
	return StateUnclaimed
}

// IsDeleted reports whether the row was soft deleted.
func (s *Submission) IsDeleted() bool {
	return s.DeletedAt != nil
}

// IsOwnedBy reports whether the given identity owns this submission.
// Unclaimed rows have no owner and match nobody.
func (s *Submission) IsOwnedBy(userID uuid.UUID) bool {
	return s.UserID != nil && *s.UserID == userID
}

// FullName joins the name columns for notification payloads.
func (s *Submission) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.Surname)
}

// NewOpaqueToken mints a manage/delete credential. Tokens are plain
// high-entropy strings; unguessability is their only security property.
func NewOpaqueToken() string {
	return uuid.NewString() + strings.ReplaceAll(uuid.NewString(), "-", "")
}
