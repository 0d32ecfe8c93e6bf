package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the document does not exist (or is soft deleted).
	ErrNotFound = errors.New("repository: record not found")
	// ErrConflict is returned when a conditional update lost against a concurrent writer.
	ErrConflict = errors.New("repository: version conflict")
	// ErrDuplicateKey is returned when a unique key (idempotency key, claim, usage) already exists.
	ErrDuplicateKey = errors.New("repository: duplicate key")
)

// translate maps gorm errors onto the repository sentinels.
// The gorm connection is opened with TranslateError so unique violations surface as ErrDuplicatedKey.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateKey
	default:
		return err
	}
}
