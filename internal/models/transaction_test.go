package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransactionPopulatesIdentity(t *testing.T) {
	ref := int64(7)
	tx, err := NewTransaction(SystemSender, "0xAAA", decimal.NewFromInt(100), &ref, KindIssue)
	require.NoError(t, err)

	_, err = uuid.Parse(tx.ID)
	assert.NoError(t, err, "ID must be a valid uuid")
	assert.False(t, tx.CreatedAt.IsZero())
	assert.Equal(t, KindIssue, tx.Kind)
}

func TestNewTransactionRejectsNegativeAmount(t *testing.T) {
	_, err := NewTransaction("0xAAA", "0xBBB", decimal.NewFromInt(-1), nil, KindTransfer)

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "amount", validation.Field)
}

func TestNewTransactionAllowsZeroAmount(t *testing.T) {
	_, err := NewTransaction("0xAAA", "0xBBB", decimal.Zero, nil, KindTransfer)
	assert.NoError(t, err)
}

func TestNewTransactionRejectsUnknownKind(t *testing.T) {
	_, err := NewTransaction("0xAAA", "0xBBB", decimal.NewFromInt(1), nil, TxKind("BURN"))

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "kind", validation.Field)
}

func TestNewTransactionRejectsMissingAddresses(t *testing.T) {
	_, err := NewTransaction("", "0xBBB", decimal.NewFromInt(1), nil, KindTransfer)
	require.Error(t, err)

	_, err = NewTransaction("0xAAA", "", decimal.NewFromInt(1), nil, KindTransfer)
	require.Error(t, err)
}

func TestCloneIsolatesMutableFields(t *testing.T) {
	ref := int64(7)
	tx, err := NewTransaction("0xAAA", "0xBBB", decimal.NewFromInt(1), &ref, KindTransfer)
	require.NoError(t, err)
	tx.Metadata = map[string]any{"note": "original"}

	clone := tx.Clone()
	clone.Metadata["note"] = "changed"
	*clone.ProjectRef = 99

	assert.Equal(t, "original", tx.Metadata["note"])
	assert.Equal(t, int64(7), *tx.ProjectRef)
}
