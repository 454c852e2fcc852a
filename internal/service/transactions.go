package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/flour/internal/errs"
	"github.com/and161185/flour/internal/model"
	"github.com/and161185/flour/internal/repository"
)

// ConfirmTransaction records the actor's confirmation. The second party's
// confirmation completes both the transaction and its request. Repeating a
// confirmation changes nothing.
func (m *Market) ConfirmTransaction(ctx context.Context, txID uuid.UUID) (tx model.Transaction, err error) {
	defer m.track("confirm_transaction", &err)

	actor, err := m.actor(ctx)
	if err != nil {
		return model.Transaction{}, err
	}
	tx, completed, err := m.confirm(ctx, actor, txID)
	if err != nil {
		return model.Transaction{}, err
	}
	if completed {
		m.metrics.TransactionCompleted()
		m.log.Info("transaction completed", zap.String("transaction_id", tx.ID.String()))
		if m.onComplete != nil {
			m.onComplete(tx)
		}
	}
	return tx, nil
}

func (m *Market) confirm(ctx context.Context, actor, txID uuid.UUID) (model.Transaction, bool, error) {
	tx, err := m.store.Transaction(txID)
	if err != nil {
		return model.Transaction{}, false, err
	}
	unlock := m.locks.Lock(tx.RequestID)
	defer unlock()

	if tx, err = m.store.Transaction(txID); err != nil {
		return model.Transaction{}, false, err
	}
	if !tx.IsParty(actor) {
		return model.Transaction{}, false, fmt.Errorf("confirm transaction %s: not a party: %w", txID, errs.ErrForbidden)
	}
	switch tx.Status {
	case model.TransactionDisputed, model.TransactionRefunded:
		return model.Transaction{}, false, fmt.Errorf("confirm transaction %s: transaction is %s: %w", txID, tx.Status, errs.ErrInvalidState)
	}
	if (actor == tx.RequesterID && tx.RequesterConfirmed) || (actor == tx.FulfillerID && tx.FulfillerConfirmed) {
		return tx, false, nil
	}

	wasCompleted := tx.Status == model.TransactionCompleted
	tx.Confirm(actor, m.now())
	cs := repository.Changeset{Transactions: []model.Transaction{tx}}
	completed := !wasCompleted && tx.Status == model.TransactionCompleted
	if completed {
		req, err := m.store.Request(tx.RequestID)
		if err != nil {
			return model.Transaction{}, false, fmt.Errorf("confirm transaction %s: request %s: %w", txID, tx.RequestID, err)
		}
		req.Status = model.RequestCompleted
		cs.Requests = []model.Request{req}
	}
	if err := m.commit(ctx, cs); err != nil {
		return model.Transaction{}, false, err
	}
	return tx, completed, nil
}

// Transaction returns a snapshot of one transaction.
func (m *Market) Transaction(id uuid.UUID) (model.Transaction, error) {
	return m.store.Transaction(id)
}

// TransactionForRequest returns the transaction created for a request.
func (m *Market) TransactionForRequest(requestID uuid.UUID) (model.Transaction, error) {
	return m.store.TransactionByRequest(requestID)
}

// MyTransactions lists the transactions userID is a party to, newest first.
func (m *Market) MyTransactions(userID uuid.UUID) []model.Transaction {
	var out []model.Transaction
	for _, t := range m.store.Transactions() {
		if t.IsParty(userID) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// participantTx loads a transaction and checks that actor is a party to it.
func (m *Market) participantTx(actor, txID uuid.UUID) (model.Transaction, error) {
	tx, err := m.store.Transaction(txID)
	if err != nil {
		return model.Transaction{}, err
	}
	if !tx.IsParty(actor) {
		return model.Transaction{}, fmt.Errorf("transaction %s: not a participant: %w", txID, errs.ErrForbidden)
	}
	return tx, nil
}
