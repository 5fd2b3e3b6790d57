// Package account implements the account service rules: typed accounts with
// a unit of value, an acyclic parent tree, and delete guards for accounts
// that still have children.
package account

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/tealbook/ledgerd/internal/errs"
	"github.com/tealbook/ledgerd/internal/ledger"
	"github.com/tealbook/ledgerd/internal/unit"
)

// Repo defines read operations needed by the service.
type Repo interface {
	GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
}

// Writer defines write operations needed by the service.
type Writer interface {
	CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error)
	UpdateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error)
	DeleteAccount(ctx context.Context, id uuid.UUID) error
}

// Service exposes account CRUD with tree invariants enforced.
type Service interface {
	Create(ctx context.Context, a ledger.Account) (ledger.Account, error)
	Update(ctx context.Context, a ledger.Account) (ledger.Account, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	List(ctx context.Context) ([]ledger.Account, error)
}

type service struct {
	repo   Repo
	writer Writer
}

// New constructs the account service.
func New(repo Repo, writer Writer) Service { return &service{repo: repo, writer: writer} }

func (s *service) validate(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	if a.Name == "" {
		return a, errors.New("name is required")
	}
	if !a.Type.Valid() {
		return a, errors.New("invalid account type")
	}
	a.Unit = unit.Normalize(a.Unit)
	if !unit.IsValid(a.Unit) {
		return a, errors.New("invalid unit token")
	}
	if a.ParentID != nil {
		if *a.ParentID == a.ID {
			return a, errs.ErrAccountCycle
		}
		if err := s.checkAncestry(ctx, a.ID, *a.ParentID); err != nil {
			return a, err
		}
	}
	return a, nil
}

// checkAncestry walks the parent chain from parentID and fails if it reaches
// accountID, which would make the account its own ancestor.
func (s *service) checkAncestry(ctx context.Context, accountID, parentID uuid.UUID) error {
	cur := parentID
	for i := 0; i < 256; i++ {
		p, err := s.repo.GetAccount(ctx, cur)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errors.New("parent account not found")
			}
			return err
		}
		if p.ID == accountID {
			return errs.ErrAccountCycle
		}
		if p.ParentID == nil {
			return nil
		}
		cur = *p.ParentID
	}
	return errs.ErrAccountCycle
}

func (s *service) Create(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	a.ID = uuid.New()
	a.Active = true
	a, err := s.validate(ctx, a)
	if err != nil {
		return ledger.Account{}, err
	}
	return s.writer.CreateAccount(ctx, a)
}

func (s *service) Update(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	if a.ID == uuid.Nil {
		return ledger.Account{}, errs.ErrInvalid
	}
	current, err := s.repo.GetAccount(ctx, a.ID)
	if err != nil {
		return ledger.Account{}, err
	}
	// Unit is immutable once entries may reference it; changing it would
	// silently rewrite history through the denormalized copies.
	if a.Unit != "" && unit.Normalize(a.Unit) != current.Unit {
		return ledger.Account{}, errs.ErrConflict
	}
	a.Unit = current.Unit
	a.Active = current.Active
	a, err = s.validate(ctx, a)
	if err != nil {
		return ledger.Account{}, err
	}
	return s.writer.UpdateAccount(ctx, a)
}

// Delete removes an account outright. Accounts that still have children are
// refused; deactivate instead to keep the subtree intact.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return errs.ErrInvalid
	}
	if _, err := s.repo.GetAccount(ctx, id); err != nil {
		return err
	}
	all, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return err
	}
	for _, other := range all {
		if other.ParentID != nil && *other.ParentID == id {
			return errs.ErrAccountHasChildren
		}
	}
	return s.writer.DeleteAccount(ctx, id)
}

// Deactivate sets Active=false (soft delete).
func (s *service) Deactivate(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return errs.ErrInvalid
	}
	acc, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	acc.Active = false
	_, err = s.writer.UpdateAccount(ctx, acc)
	return err
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	if id == uuid.Nil {
		return ledger.Account{}, errs.ErrInvalid
	}
	return s.repo.GetAccount(ctx, id)
}

func (s *service) List(ctx context.Context) ([]ledger.Account, error) {
	return s.repo.ListAccounts(ctx)
}
