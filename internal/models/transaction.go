package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TxKind labels the kind of credit movement a transaction records.
type TxKind string

const (
	KindIssue    TxKind = "ISSUE"
	KindMint     TxKind = "MINT"
	KindTransfer TxKind = "TRANSFER"
)

// SystemSender is the sender address used when credits are created by the
// registry itself rather than moved from an existing holder.
const SystemSender = "SYSTEM"

// ValidationError reports a transaction that was rejected before it reached
// the pending buffer.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid transaction: %s %s", e.Field, e.Reason)
}

// Transaction represents one immutable credit movement. It is held
// transiently in the pending buffer and owned by exactly one block once
// sealed.
type Transaction struct {
	ID          string          `json:"id"`
	Sender      string          `json:"sender"`
	Recipient   string          `json:"recipient"`
	Amount      decimal.Decimal `json:"amount"`
	ProjectRef  *int64          `json:"project_ref,omitempty"`
	Kind        TxKind          `json:"kind"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	ExternalRef string          `json:"external_ref,omitempty"` // transaction id on an external network, if any
	CreatedAt   time.Time       `json:"created_at"`
}

// NewTransaction builds a validated transaction with a fresh ID and
// timestamp. A negative amount, an unknown kind or a missing address is
// rejected with a *ValidationError.
func NewTransaction(sender, recipient string, amount decimal.Decimal, projectRef *int64, kind TxKind) (Transaction, error) {
	tx := Transaction{
		ID:         uuid.New().String(),
		Sender:     sender,
		Recipient:  recipient,
		Amount:     amount,
		ProjectRef: projectRef,
		Kind:       kind,
		CreatedAt:  time.Now(),
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// Validate checks the construction invariants. The chain manager re-runs it
// before a transaction enters the pending buffer, so a hand-built
// Transaction cannot bypass the checks.
func (t Transaction) Validate() error {
	if t.Sender == "" {
		return &ValidationError{Field: "sender", Reason: "must not be empty"}
	}
	if t.Recipient == "" {
		return &ValidationError{Field: "recipient", Reason: "must not be empty"}
	}
	if t.Amount.IsNegative() {
		return &ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	switch t.Kind {
	case KindIssue, KindMint, KindTransfer:
	default:
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown value %q", string(t.Kind))}
	}
	return nil
}

// Clone returns a deep copy so callers can hand transactions out without
// sharing the metadata map or project reference.
func (t Transaction) Clone() Transaction {
	out := t
	if t.ProjectRef != nil {
		ref := *t.ProjectRef
		out.ProjectRef = &ref
	}
	if t.Metadata != nil {
		meta := make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			meta[k] = v
		}
		out.Metadata = meta
	}
	return out
}
