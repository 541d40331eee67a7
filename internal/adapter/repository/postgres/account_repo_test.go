package postgres

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/simaogato/transfer-engine/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestWrapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{name: "serialization failure", err: &pq.Error{Code: "40001"}, expected: domain.ErrConflict},
		{name: "deadlock", err: &pq.Error{Code: "40P01"}, expected: domain.ErrConflict},
		{name: "duplicate id", err: &pq.Error{Code: "23505"}, expected: domain.ErrAccountAlreadyExists},
		{name: "negative balance", err: &pq.Error{Code: "23514"}, expected: domain.ErrNegativeBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrapError(tt.err, "op")
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestWrapError_KeepsUnknownErrors(t *testing.T) {
	cause := errors.New("connection refused")
	err := wrapError(cause, "failed to begin transaction")

	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, "failed to begin transaction: connection refused", err.Error())

	uniqueErr := wrapError(&pq.Error{Code: "42P01"}, "op")
	assert.NotErrorIs(t, uniqueErr, domain.ErrConflict)
}

func TestMigrationsAreEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	assert.NoError(t, err)
	assert.Len(t, entries, 2)
}
