package services

import (
	"context"
	"fmt"
	"time"

	"playforge/gateway"
	"playforge/utils"
)

// ValidationError is returned before any remote call is made.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Message: err.Error()}
}

// PartialFailure reports an aggregate create that failed after its parent
// row was written. Compensated tells whether the parent was removed again.
type PartialFailure struct {
	Entity      string
	ID          string
	Step        string
	Compensated bool
	Err         error
	RollbackErr error
}

func (e *PartialFailure) Error() string {
	if e.Compensated {
		return fmt.Sprintf("create %s failed at %s and was rolled back: %v", e.Entity, e.Step, e.Err)
	}
	return fmt.Sprintf("create %s failed at %s, %s %s left behind (rollback: %v): %v",
		e.Entity, e.Step, e.Entity, e.ID, e.RollbackErr, e.Err)
}

func (e *PartialFailure) Unwrap() error { return e.Err }

const compensationTimeout = 10 * time.Second

// compensate deletes the parent row of a half-written aggregate. It runs even
// when ctx is already cancelled.
func compensate(ctx context.Context, gw gateway.Gateway, table, entity, id, step string, cause error) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	pf := &PartialFailure{Entity: entity, ID: id, Step: step, Err: cause}
	if err := gw.Delete(cctx, table, id); err != nil {
		pf.RollbackErr = err
		utils.LogError(fmt.Sprintf("Rollback of %s %s failed", entity, id), err)
	} else {
		pf.Compensated = true
		utils.LogWarning(fmt.Sprintf("Rolled back %s %s after %s failed", entity, id, step))
	}
	return pf
}
