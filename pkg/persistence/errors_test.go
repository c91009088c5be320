package persistence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTemplateError_WrapsSentinel(t *testing.T) {
	err := NewTemplateError("GetByID", "tpl-1", ErrTemplateNotFound)

	assert.True(t, IsTemplateNotFound(err))
	assert.Contains(t, err.Error(), "GetByID")
	assert.Contains(t, err.Error(), "tpl-1")
	assert.Equal(t, ErrTemplateNotFound, errors.Unwrap(err))
}

func TestGraphError_WrapsSentinel(t *testing.T) {
	err := NewGraphError("DeleteNode", "tpl-1", "node-9", ErrNodeNotFound)

	assert.True(t, IsNodeNotFound(err))
	assert.Contains(t, err.Error(), "node-9")
}

func TestInstanceError_WrapsSentinel(t *testing.T) {
	err := NewInstanceError("ApplyStep", "inst-1", ErrVersionConflict)

	assert.True(t, IsVersionConflict(err))
	assert.False(t, IsInstanceNotFound(err))
}

func TestHelpers_SurviveFmtWrapping(t *testing.T) {
	wrapped := fmt.Errorf("repository failure: %w", ErrForeignNode)

	assert.True(t, IsForeignNode(wrapped))
	assert.False(t, IsVersionConflict(wrapped))
}

func TestHelpers_NilError(t *testing.T) {
	assert.False(t, IsTemplateNotFound(nil))
	assert.False(t, IsDuplicateTemplateName(nil))
}
