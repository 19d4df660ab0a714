package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tlu-support/internal/models"
)

func seedMessages(t *testing.T, s *MemoryStore, convID string, n int) []models.Message {
	t.Helper()
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	msgs := make([]models.Message, 0, n)
	for i := 0; i < n; i++ {
		m := models.Message{
			ID:             fmt.Sprintf("m-%03d", i),
			ConversationID: convID,
			SenderID:       "s-1",
			Content:        fmt.Sprintf("msg %d", i),
			MsgType:        models.MessageText,
			// pairs share a timestamp so the id tie-break is exercised
			CreatedAt: base.Add(time.Duration(i/2) * time.Second),
		}
		require.NoError(t, s.InsertMessage(context.Background(), &m))
		msgs = append(msgs, m)
	}
	return msgs
}

func TestListMessagesPagesCoverEverythingOnce(t *testing.T) {
	s := NewMemoryStore()
	seedMessages(t, s, "c-1", 47)
	seedMessages(t, s, "c-2", 3)

	seen := map[string]bool{}
	var prev *models.Message
	for offset := 0; ; offset += 10 {
		page, total, err := s.ListMessages(context.Background(), "c-1", offset, 10)
		require.NoError(t, err)
		assert.EqualValues(t, 47, total)
		if len(page) == 0 {
			break
		}
		for i := range page {
			m := page[i]
			assert.False(t, seen[m.ID], "duplicate %s", m.ID)
			seen[m.ID] = true
			if prev != nil {
				assert.True(t, m.CreatedAt.Before(prev.CreatedAt) ||
					(m.CreatedAt.Equal(prev.CreatedAt) && m.ID < prev.ID), "order broken at %s", m.ID)
			}
			prev = &m
		}
	}
	assert.Len(t, seen, 47)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("boom")

	require.NoError(t, s.CreateConversation(ctx, &models.Conversation{ID: "c-1", Status: models.StatusClosed}))

	err := s.WithTx(ctx, func(ctx context.Context) error {
		conv, err := s.GetConversation(ctx, "c-1")
		require.NoError(t, err)
		conv.Status = models.StatusPendingAgent
		require.NoError(t, s.UpdateConversation(ctx, conv))
		require.NoError(t, s.CreateConversation(ctx, &models.Conversation{ID: "c-2"}))
		require.NoError(t, s.InsertMessage(ctx, &models.Message{ID: "m-1", ConversationID: "c-1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	conv, err := s.GetConversation(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, conv.Status)
	assert.EqualValues(t, 0, conv.Version)

	_, err = s.GetConversation(ctx, "c-2")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, total, err := s.ListMessages(ctx, "c-1", 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestUpdateConversationDetectsStaleVersion(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateConversation(ctx, &models.Conversation{ID: "c-1", Status: models.StatusPendingAgent}))

	a, _ := s.GetConversation(ctx, "c-1")
	b, _ := s.GetConversation(ctx, "c-1")

	a.Status = models.StatusClosed
	require.NoError(t, s.UpdateConversation(ctx, a))
	assert.EqualValues(t, 1, a.Version)

	b.Status = models.StatusAgentProcessing
	assert.ErrorIs(t, s.UpdateConversation(ctx, b), models.ErrConflict)

	err := s.UpdateConversation(ctx, &models.Conversation{ID: "missing"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListConversationsOrderAndFilter(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()
	for i, st := range []models.ChatStatus{models.StatusPendingAgent, models.StatusClosed, models.StatusPendingAgent} {
		require.NoError(t, s.CreateConversation(ctx, &models.Conversation{
			ID:            fmt.Sprintf("c-%d", i),
			Status:        st,
			LastMessageAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := s.ListConversations(ctx, models.ConversationFilter{Limit: 20})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c-2", "c-1", "c-0"}, []string{all[0].ID, all[1].ID, all[2].ID})

	pending, err := s.ListConversations(ctx, models.ConversationFilter{Status: models.StatusPendingAgent, Limit: 1})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "c-2", pending[0].ID)
}

func TestSearchStudents(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	people := []struct {
		id, name, code string
		status         models.AcademicStatus
	}{
		{"u-1", "Nguyen An", "A001", models.AcademicActive},
		{"u-2", "Tran Binh", "B002", models.AcademicWarning},
		{"u-3", "Le Chi", "C003", models.AcademicActive},
	}
	for _, p := range people {
		require.NoError(t, s.CreateUser(ctx, &models.User{ID: p.id, Email: p.id + "@uni.test", FullName: p.name, Role: models.RoleStudent}))
		require.NoError(t, s.CreateStudent(ctx, &models.Student{UserID: p.id, StudentCode: p.code, AcademicStatus: p.status}))
	}

	page, err := s.SearchStudents(ctx, models.StudentFilter{Page: 1, Size: 10, Status: models.AcademicActive})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	assert.Equal(t, "Le Chi", page.Items[0].FullName)

	page, err = s.SearchStudents(ctx, models.StudentFilter{Page: 1, Size: 10, Keyword: "b00"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "u-2", page.Items[0].UserID)

	page, err = s.SearchStudents(ctx, models.StudentFilter{Page: 2, Size: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	assert.Len(t, page.Items, 1)

	err = s.CreateStudent(ctx, &models.Student{UserID: "u-9", StudentCode: "A001"})
	assert.ErrorIs(t, err, models.ErrDuplicate)
}
