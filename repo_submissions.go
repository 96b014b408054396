package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ClaimSubmissionSQL performs the claim as one conditional update so two
// concurrent claims on the same token cannot both succeed. The guard clauses
// double as the token invalidation: zero rows back means the token was
// consumed, never existed, or the row is gone.
var ClaimSubmissionSQL = `UPDATE "intake_submissions" AS "sub"
SET
	"claim_token" = NULL,
	"user_id" = ?,
	"claimed_at" = CURRENT_TIMESTAMP,
	"manage_token" = COALESCE("manage_token", ?),
	"delete_token" = COALESCE("delete_token", ?),
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"sub"."claim_token" = ?
AND "sub"."user_id" IS NULL
AND "sub"."deleted_at" IS NULL
RETURNING *;`

// SoftDeleteSubmissionSQL marks the row deleted only if it is not already.
// Zero rows back means either already deleted or not found; callers re-read
// to tell the two apart.
var SoftDeleteSubmissionSQL = `UPDATE "intake_submissions" AS "sub"
SET
	"deleted_at" = CURRENT_TIMESTAMP,
	"delete_reason" = ?,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"sub"."id" = ?
AND "sub"."deleted_at" IS NULL
RETURNING *;`

// TokenKind names the three credential columns a lookup may target.
type TokenKind = string

const (
	ClaimTokenKind  TokenKind = "claim_token"
	ManageTokenKind TokenKind = "manage_token"
	DeleteTokenKind TokenKind = "delete_token"
)

// profileColumns are the mutable fields the editor may write. Lifecycle and
// credential columns are deliberately absent.
var profileColumns = []string{
	"first_name", "surname", "father_name", "mother_name", "date_of_birth",
	"city", "country", "phone", "email",
	"contact_name", "preferred_communication",
	"languages", "gender", "height", "community", "marital_status",
	"children", "occupation",
	"their_occupation", "their_community", "their_languages", "their_status",
	"about_me", "about_them", "references",
	"updated_at",
}

type Submissions interface {
	repository.Repository[*Submission]

	GetByToken(ctx context.Context, kind TokenKind, token string) (*Submission, error)
	GetByTokenTx(ctx context.Context, tx bun.IDB, kind TokenKind, token string) (*Submission, error)

	Claim(ctx context.Context, token string, userID uuid.UUID, manageToken, deleteToken string) (*Submission, error)
	ClaimTx(ctx context.Context, tx bun.IDB, token string, userID uuid.UUID, manageToken, deleteToken string) (*Submission, error)

	SoftDelete(ctx context.Context, id uuid.UUID, reason string) (*Submission, error)
	SoftDeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID, reason string) (*Submission, error)

	UpdateProfile(ctx context.Context, record *Submission) (*Submission, error)
	UpdateProfileTx(ctx context.Context, tx bun.IDB, record *Submission) (*Submission, error)

	SetPhotoPath(ctx context.Context, id uuid.UUID, path string) error
	SetPhotoPathTx(ctx context.Context, tx bun.IDB, id uuid.UUID, path string) error
}

type submissions struct {
	repository.Repository[*Submission]
	db *bun.DB
}

var (
	_ Submissions                        = (*submissions)(nil)
	_ repository.Repository[*Submission] = (*submissions)(nil)
)

func NewSubmissionsRepository(db *bun.DB) Submissions {
	repo := repository.NewRepository[*Submission](db, repository.ModelHandlers[*Submission]{
		NewRecord: func() *Submission { return &Submission{} },
		GetID: func(s *Submission) uuid.UUID {
			if s == nil {
				return uuid.Nil
			}
			return s.ID
		},
		SetID: func(s *Submission, id uuid.UUID) {
			if s != nil {
				s.ID = id
			}
		},
		GetIdentifier: func() string {
			return "manage_token"
		},
	})

	return &submissions{
		Repository: repo,
		db:         db,
	}
}

func (a *submissions) GetByToken(ctx context.Context, kind TokenKind, token string) (*Submission, error) {
	return a.GetByTokenTx(ctx, a.db, kind, token)
}

func (a *submissions) GetByTokenTx(ctx context.Context, tx bun.IDB, kind TokenKind, token string) (*Submission, error) {
	column, err := tokenColumn(kind)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(token) == "" {
		return nil, NewMissingParameterError(column)
	}

	record := &Submission{}
	err = tx.NewSelect().
		Model(record).
		Where(fmt.Sprintf("?TableAlias.%s = ?", column), token).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"token_kind": kind,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *submissions) Claim(ctx context.Context, token string, userID uuid.UUID, manageToken, deleteToken string) (*Submission, error) {
	return a.ClaimTx(ctx, a.db, token, userID, manageToken, deleteToken)
}

func (a *submissions) ClaimTx(ctx context.Context, tx bun.IDB, token string, userID uuid.UUID, manageToken, deleteToken string) (*Submission, error) {
	res, err := a.Repository.RawTx(ctx, tx, ClaimSubmissionSQL,
		userID.String(), manageToken, deleteToken, token)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"token_kind": ClaimTokenKind,
			})
	}

	return res[0], nil
}

func (a *submissions) SoftDelete(ctx context.Context, id uuid.UUID, reason string) (*Submission, error) {
	return a.SoftDeleteTx(ctx, a.db, id, reason)
}

func (a *submissions) SoftDeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID, reason string) (*Submission, error) {
	if strings.TrimSpace(reason) == "" {
		reason = DefaultDeleteReason
	}

	res, err := a.Repository.RawTx(ctx, tx, SoftDeleteSubmissionSQL, reason, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return res[0], nil
}

func (a *submissions) UpdateProfile(ctx context.Context, record *Submission) (*Submission, error) {
	return a.UpdateProfileTx(ctx, a.db, record)
}

// UpdateProfileTx writes the mutable field set, refusing rows that were soft
// deleted. Last write wins; there is no optimistic concurrency token.
func (a *submissions) UpdateProfileTx(ctx context.Context, tx bun.IDB, record *Submission) (*Submission, error) {
	if record == nil || record.ID == uuid.Nil {
		return nil, NewMissingParameterError("id")
	}

	now := time.Now()
	record.UpdatedAt = &now

	res, err := tx.NewUpdate().
		Model(record).
		Column(profileColumns...).
		Where("?TableAlias.id = ?", record.ID).
		Where("?TableAlias.deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if affected == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": record.ID.String(),
			})
	}

	return record, nil
}

func (a *submissions) SetPhotoPath(ctx context.Context, id uuid.UUID, path string) error {
	return a.SetPhotoPathTx(ctx, a.db, id, path)
}

func (a *submissions) SetPhotoPathTx(ctx context.Context, tx bun.IDB, id uuid.UUID, path string) error {
	now := time.Now()
	record := &Submission{ID: id, PhotoPath: path, UpdatedAt: &now}

	res, err := tx.NewUpdate().
		Model(record).
		Column("photo_path", "updated_at").
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func tokenColumn(kind TokenKind) (string, error) {
	switch kind {
	case ClaimTokenKind, ManageTokenKind, DeleteTokenKind:
		return kind, nil
	default:
		return "", NewMissingParameterError("token kind")
	}
}
