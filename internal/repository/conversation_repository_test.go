package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wa_relay/internal/entities"
)

func newConversation() *entities.Conversation {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &entities.Conversation{
		ID:            "conv-1",
		BusinessID:    "biz-1",
		CustomerPhone: "15551234567",
		Status:        entities.ConversationActive,
		LastMessageAt: now,
		CreatedAt:     now,
	}
}

func TestInsertConversation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	conv := newConversation()
	mock.ExpectQuery("INSERT INTO conversations").
		WithArgs(conv.ID, conv.BusinessID, conv.CustomerPhone, "active", conv.LastMessageAt, conv.CreatedAt).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(conv.ID))

	require.NoError(t, NewConversationRepository(mock).InsertConversation(context.Background(), conv))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertConversationConflict(t *testing.T) {
	for name, dbErr := range map[string]error{
		"do nothing":       pgx.ErrNoRows,
		"unique violation": &pgconn.PgError{Code: "23505"},
	} {
		t.Run(name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			conv := newConversation()
			mock.ExpectQuery("INSERT INTO conversations").
				WithArgs(conv.ID, conv.BusinessID, conv.CustomerPhone, "active", conv.LastMessageAt, conv.CreatedAt).
				WillReturnError(dbErr)

			err = NewConversationRepository(mock).InsertConversation(context.Background(), conv)
			assert.ErrorIs(t, err, entities.ErrDuplicateActiveConversation)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestFindActiveConversation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	conv := newConversation()
	mock.ExpectQuery("FROM conversations").
		WithArgs("biz-1", "15551234567").
		WillReturnRows(pgxmock.NewRows([]string{"id", "business_id", "customer_phone", "status", "last_message_at", "created_at"}).
			AddRow(conv.ID, conv.BusinessID, conv.CustomerPhone, "active", conv.LastMessageAt, conv.CreatedAt))

	got, err := NewConversationRepository(mock).FindActiveConversation(context.Background(), "biz-1", "15551234567")
	require.NoError(t, err)
	assert.Equal(t, *conv, *got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveConversationMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM conversations").
		WithArgs("biz-1", "1").
		WillReturnError(pgx.ErrNoRows)

	_, err = NewConversationRepository(mock).FindActiveConversation(context.Background(), "biz-1", "1")
	assert.ErrorIs(t, err, entities.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMessage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO messages").
		WithArgs("msg-1", "conv-1", "Hi", "customer", "3EB0AA", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO messages").
		WithArgs("msg-2", "conv-1", "Hello!", "bot", nil, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewConversationRepository(mock)
	require.NoError(t, repo.InsertMessage(context.Background(), &entities.Message{
		ID: "msg-1", ConversationID: "conv-1", Content: "Hi", SenderType: entities.SenderCustomer,
		WhatsAppMessageID: "3EB0AA", CreatedAt: at,
	}))
	require.NoError(t, repo.InsertMessage(context.Background(), &entities.Message{
		ID: "msg-2", ConversationID: "conv-1", Content: "Hello!", SenderType: entities.SenderBot, CreatedAt: at,
	}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMessageDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO messages").
		WithArgs("m", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "x", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err = NewConversationRepository(mock).InsertMessage(context.Background(), &entities.Message{ID: "m", WhatsAppMessageID: "x"})
	assert.ErrorIs(t, err, entities.ErrDuplicateMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMessageFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO messages").
		WithArgs("m", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), nil, pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err = NewConversationRepository(mock).InsertMessage(context.Background(), &entities.Message{ID: "m"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, entities.ErrDuplicateMessage)
}

func TestRecentMessagesNewestFirst(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	mock.ExpectQuery("FROM messages").
		WithArgs("conv-1", 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "conversation_id", "content", "sender_type", "whatsapp_message_id", "created_at"}).
			AddRow("m2", "conv-1", "Hello!", "bot", "", t2).
			AddRow("m1", "conv-1", "Hi", "customer", "3EB0AA", t1))

	msgs, err := NewConversationRepository(mock).RecentMessages(context.Background(), "conv-1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, entities.SenderBot, msgs[0].SenderType)
	assert.Equal(t, "3EB0AA", msgs[1].WhatsAppMessageID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTouchConversation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE conversations").WithArgs("conv-1", at).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, NewConversationRepository(mock).TouchConversation(context.Background(), "conv-1", at))
	require.NoError(t, mock.ExpectationsWereMet())
}
