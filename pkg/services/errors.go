// Package services implements the engine's business operations on top of the
// persistence layer: template CRUD, graph mutation, the approval lifecycle,
// instance execution and import/export.
package services

import (
	"errors"
	"fmt"

	"github.com/clinicdesk/pathway/pkg/persistence"
)

// Validation errors (400 Bad Request).
var (
	ErrNameRequired          = errors.New("template name is required")
	ErrTitleRequired         = errors.New("node title is required")
	ErrLabelRequired         = errors.New("option label is required")
	ErrInvalidNodeType       = errors.New("invalid node type")
	ErrTargetOutsideTemplate = errors.New("option target must belong to the same template")
	ErrBranchingUnsupported  = errors.New("node type does not support answer options")
	ErrSelfLink              = errors.New("link cannot target the node's own template")
	ErrUnknownChoice         = errors.New("choice is not available on the current node")
	ErrDanglingTarget        = errors.New("choice target has been removed from the template")
	ErrNoNextNode            = errors.New("no next node to continue to")
	ErrEmptyPositions        = errors.New("reposition requires at least one node")
	ErrInvalidImportDocument = errors.New("import document failed schema validation")
)

// Permission errors (403 Forbidden).
var ErrForbidden = errors.New("caller may not perform this operation")

// State errors (422 Unprocessable Entity).
var (
	ErrTemplateNotEditable = errors.New("template is not editable in its current status")
	ErrTemplateNotRunnable = errors.New("template is not approved for execution")
	ErrEmptyGraph          = errors.New("template has no nodes")
	ErrInstanceNotRunning  = errors.New("instance is not in progress")
	ErrInvalidTransition   = errors.New("status transition is not allowed")
	ErrStepBudgetExhausted = errors.New("instance exceeded its step budget")
)

// Re-exported persistence sentinels so callers depend on one package.
var (
	ErrTemplateNotFound = persistence.ErrTemplateNotFound
	ErrInstanceNotFound = persistence.ErrInstanceNotFound
	ErrVersionConflict  = persistence.ErrVersionConflict
)

// ServiceError wraps service-level errors with the failing operation.
type ServiceError struct {
	Op      string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrNameRequired) ||
		errors.Is(err, ErrTitleRequired) ||
		errors.Is(err, ErrLabelRequired) ||
		errors.Is(err, ErrInvalidNodeType) ||
		errors.Is(err, ErrTargetOutsideTemplate) ||
		errors.Is(err, ErrBranchingUnsupported) ||
		errors.Is(err, ErrSelfLink) ||
		errors.Is(err, ErrUnknownChoice) ||
		errors.Is(err, ErrDanglingTarget) ||
		errors.Is(err, ErrNoNextNode) ||
		errors.Is(err, ErrEmptyPositions) ||
		errors.Is(err, ErrInvalidImportDocument)
}

// IsForbiddenError checks if an error should map to HTTP 403.
func IsForbiddenError(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsNotFoundError checks if an error should map to HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsTemplateNotFound(err) ||
		persistence.IsNodeNotFound(err) ||
		persistence.IsInstanceNotFound(err) ||
		errors.Is(err, persistence.ErrOptionNotFound) ||
		errors.Is(err, persistence.ErrLinkNotFound) ||
		errors.Is(err, persistence.ErrStyleNotFound)
}

// IsConflictError checks if an error should map to HTTP 409.
func IsConflictError(err error) bool {
	return persistence.IsVersionConflict(err) ||
		persistence.IsDuplicateTemplateName(err) ||
		persistence.IsForeignNode(err)
}

// IsInvalidStateError checks if an error should map to HTTP 422: the request
// is well-formed but the aggregate's current state forbids it.
func IsInvalidStateError(err error) bool {
	return errors.Is(err, ErrTemplateNotEditable) ||
		errors.Is(err, ErrTemplateNotRunnable) ||
		errors.Is(err, ErrEmptyGraph) ||
		errors.Is(err, ErrInstanceNotRunning) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrStepBudgetExhausted)
}

// NewValidationError creates a validation error with operation context.
func NewValidationError(op, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Message: message,
		Err:     err,
	}
}
