package entity

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateEntry   = errors.New("duplicate ledger entry")
	ErrEmptyPatch       = errors.New("no updates provided")
	ErrRepositoryNotSet = errors.New("repository not initialised")
)
