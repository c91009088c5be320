// Package persistence provides standardized error types for persistence
// operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTemplateNotFound indicates a template is absent or outside the
	// caller's scope. Cross-tenant reads deliberately look identical to
	// missing rows.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrNodeNotFound indicates a node was not found in the template.
	ErrNodeNotFound = errors.New("node not found")

	// ErrOptionNotFound indicates an answer option was not found.
	ErrOptionNotFound = errors.New("answer option not found")

	// ErrLinkNotFound indicates a node link was not found.
	ErrLinkNotFound = errors.New("node link not found")

	// ErrStyleNotFound indicates no style default exists for the node type.
	ErrStyleNotFound = errors.New("node style not found")

	// ErrInstanceNotFound indicates an instance is absent or belongs to a
	// different tenant.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrVersionConflict indicates the caller's version stamp is stale; a
	// concurrent writer got there first.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDuplicateTemplateName indicates the template name is already taken
	// within its scope.
	ErrDuplicateTemplateName = errors.New("template name already in use")

	// ErrForeignNode indicates a bulk reposition batch referenced a node
	// that does not belong to the template.
	ErrForeignNode = errors.New("node does not belong to template")
)

// TemplateError wraps template-related errors with operation context.
type TemplateError struct {
	Op         string // Operation being performed, e.g. "GetByID", "Create"
	TemplateID string
	Err        error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("%s operation failed for template %s: %v", e.Op, e.TemplateID, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

func (e *TemplateError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTemplateError creates a new template error with context.
func NewTemplateError(op, templateID string, err error) *TemplateError {
	return &TemplateError{Op: op, TemplateID: templateID, Err: err}
}

// GraphError wraps graph-element errors with operation context.
type GraphError struct {
	Op         string
	TemplateID string
	ElementID  string // Node, option or link id
	Err        error
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("%s operation failed for %s in template %s: %v", e.Op, e.ElementID, e.TemplateID, e.Err)
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

func (e *GraphError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewGraphError creates a new graph error with context.
func NewGraphError(op, templateID, elementID string, err error) *GraphError {
	return &GraphError{Op: op, TemplateID: templateID, ElementID: elementID, Err: err}
}

// InstanceError wraps instance-related errors with operation context.
type InstanceError struct {
	Op         string
	InstanceID string
	Err        error
}

func (e *InstanceError) Error() string {
	return fmt.Sprintf("%s operation failed for instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

func (e *InstanceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewInstanceError creates a new instance error with context.
func NewInstanceError(op, instanceID string, err error) *InstanceError {
	return &InstanceError{Op: op, InstanceID: instanceID, Err: err}
}

// IsTemplateNotFound checks if an error indicates a template was not found.
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

// IsNodeNotFound checks if an error indicates a node was not found.
func IsNodeNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound)
}

// IsInstanceNotFound checks if an error indicates an instance was not found.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsVersionConflict checks if an error indicates a stale version stamp.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsDuplicateTemplateName checks if an error indicates a name collision.
func IsDuplicateTemplateName(err error) bool {
	return errors.Is(err, ErrDuplicateTemplateName)
}

// IsForeignNode checks if an error indicates a reposition batch referenced
// a node outside the template.
func IsForeignNode(err error) bool {
	return errors.Is(err, ErrForeignNode)
}
