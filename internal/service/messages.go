package service

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/flour/internal/errs"
	"github.com/and161185/flour/internal/model"
	"github.com/and161185/flour/internal/repository"
)

// SendMessage appends a chat line to a transaction. Messaging stays open after completion.
func (m *Market) SendMessage(ctx context.Context, txID uuid.UUID, content string) (msg model.Message, err error) {
	defer m.track("send_message", &err)

	actor, err := m.actor(ctx)
	if err != nil {
		return model.Message{}, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return model.Message{}, errs.Validationf("message is empty")
	}
	if n := utf8.RuneCountInString(content); n > m.limits.MaxMessageLen {
		return model.Message{}, errs.Validationf("message has %d characters, max %d", n, m.limits.MaxMessageLen)
	}
	tx, err := m.participantTx(actor, txID)
	if err != nil {
		return model.Message{}, err
	}
	unlock := m.locks.Lock(tx.RequestID)
	defer unlock()

	id, err := m.newID()
	if err != nil {
		return model.Message{}, err
	}
	msg = model.Message{
		ID:            id,
		TransactionID: txID,
		SenderID:      actor,
		Content:       content,
		CreatedAt:     m.now(),
	}
	if err := m.commit(ctx, repository.Changeset{Messages: []model.Message{msg}}); err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

// MarkMessagesRead marks every message not sent by the actor as read and
// returns how many changed.
func (m *Market) MarkMessagesRead(ctx context.Context, txID uuid.UUID) (n int, err error) {
	defer m.track("mark_messages_read", &err)

	actor, err := m.actor(ctx)
	if err != nil {
		return 0, err
	}
	tx, err := m.participantTx(actor, txID)
	if err != nil {
		return 0, err
	}
	unlock := m.locks.Lock(tx.RequestID)
	defer unlock()

	var changed []model.Message
	for _, msg := range m.store.MessagesByTransaction(txID) {
		if msg.SenderID != actor && !msg.IsRead {
			msg.IsRead = true
			changed = append(changed, msg)
		}
	}
	if len(changed) == 0 {
		return 0, nil
	}
	if err := m.commit(ctx, repository.Changeset{Messages: changed}); err != nil {
		return 0, err
	}
	return len(changed), nil
}

// Messages lists a transaction's messages by creation time; equal times keep insertion order.
func (m *Market) Messages(txID uuid.UUID) []model.Message {
	msgs := m.store.MessagesByTransaction(txID)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	return msgs
}

// UnreadCount counts messages addressed to the actor that are still unread.
func (m *Market) UnreadCount(ctx context.Context, txID uuid.UUID) (int, error) {
	actor, err := m.actor(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := m.participantTx(actor, txID); err != nil {
		return 0, err
	}
	n := 0
	for _, msg := range m.store.MessagesByTransaction(txID) {
		if msg.SenderID != actor && !msg.IsRead {
			n++
		}
	}
	return n, nil
}

// Conversations lists the actor's pending transactions with their latest
// message, most recent activity first.
func (m *Market) Conversations(ctx context.Context) ([]model.Conversation, error) {
	actor, err := m.actor(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Conversation
	for _, tx := range m.store.Transactions() {
		if !tx.IsParty(actor) || tx.Status != model.TransactionPending {
			continue
		}
		c := model.Conversation{Transaction: tx}
		if msgs := m.Messages(tx.ID); len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			c.LastMessage = &last
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastActivity().After(out[j].LastActivity()) })
	return out, nil
}
