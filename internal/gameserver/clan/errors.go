package clan

import (
	"errors"
	"fmt"
)

// Registry error kinds. Match with errors.Is.
var (
	ErrDuplicateTag   = errors.New("clan tag already taken")
	ErrAlreadyInClan  = errors.New("already in clan")
	ErrNotAMember     = errors.New("not a member of the clan")
	ErrNotFound       = errors.New("not found")
	ErrPolicyRejected = errors.New("rejected by policy")
	ErrPersistence    = errors.New("persistence failed")

	ErrInvalidTag   = errors.New("invalid clan tag")
	ErrInvalidName  = errors.New("invalid name")
	ErrSelfRelation = errors.New("clan cannot relate to itself")
)

// Persistence operations carried by PersistenceError.
const (
	OpInsertClan   = "insert_clan"
	OpUpdateClan   = "update_clan"
	OpDeleteClan   = "delete_clan"
	OpInsertPlayer = "insert_player"
	OpUpdatePlayer = "update_player"
	OpDeletePlayer = "delete_player"
)

// PersistenceError reports a failed call to the durable store.
// The in-memory change it belonged to has already been applied.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrPersistence) match any PersistenceError.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// policyError wraps a gate failure so it always matches ErrPolicyRejected.
func policyError(err error) error {
	if errors.Is(err, ErrPolicyRejected) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPolicyRejected, err)
}
