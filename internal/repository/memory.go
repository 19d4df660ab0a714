package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"tlu-support/internal/models"
)

// MemoryStore keeps every collection in process memory. It serves STORAGE_DRIVER=memory
// and the test suites. Transactions hold the store lock for their whole duration, so they
// are serialized and fully isolated; a failed transaction replays its undo log.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]models.User
	students      map[string]models.Student
	agents        map[string]models.Agent
	conversations map[string]models.Conversation
	messages      map[string][]models.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]models.User),
		students:      make(map[string]models.Student),
		agents:        make(map[string]models.Agent),
		conversations: make(map[string]models.Conversation),
		messages:      make(map[string][]models.Message),
	}
}

type memTxKey struct{}

type memTx struct {
	store *MemoryStore
	undo  []func()
	done  bool
}

func (tx *memTx) onRollback(f func()) {
	if tx != nil {
		tx.undo = append(tx.undo, f)
	}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s}
	err := fn(context.WithValue(ctx, memTxKey{}, tx))
	if err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
	}
	tx.done = true
	return err
}

func (s *MemoryStore) txFrom(ctx context.Context) *memTx {
	tx, ok := ctx.Value(memTxKey{}).(*memTx)
	if !ok || tx.store != s || tx.done {
		return nil
	}
	return tx
}

func (s *MemoryStore) read(ctx context.Context) func() {
	if s.txFrom(ctx) != nil {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *MemoryStore) write(ctx context.Context) (*memTx, func()) {
	if tx := s.txFrom(ctx); tx != nil {
		return tx, func() {}
	}
	s.mu.Lock()
	return nil, s.mu.Unlock
}

// Users

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	tx, unlock := s.write(ctx)
	defer unlock()

	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("%w: user id", models.ErrDuplicate)
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("%w: email", models.ErrDuplicate)
		}
	}
	s.users[user.ID] = *user
	tx.onRollback(func() { delete(s.users, user.ID) })
	return nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	defer s.read(ctx)()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user", models.ErrNotFound)
	}
	return &u, nil
}

func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	defer s.read(ctx)()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("%w: user", models.ErrNotFound)
}

func (s *MemoryStore) UpdateUser(ctx context.Context, id string, upd models.UserUpdate) error {
	tx, unlock := s.write(ctx)
	defer unlock()

	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("%w: user", models.ErrNotFound)
	}
	prev := u
	if upd.Password != nil {
		u.Password = *upd.Password
	}
	if upd.ResetRequired != nil {
		u.ResetRequired = *upd.ResetRequired
	}
	if upd.Phone != nil {
		u.Phone = *upd.Phone
	}
	if upd.Address != nil {
		u.Address = *upd.Address
	}
	if upd.Avatar != nil {
		u.Avatar = *upd.Avatar
	}
	s.users[id] = u
	tx.onRollback(func() { s.users[id] = prev })
	return nil
}

// Students and agents

func (s *MemoryStore) CreateStudent(ctx context.Context, student *models.Student) error {
	tx, unlock := s.write(ctx)
	defer unlock()

	for _, st := range s.students {
		if st.StudentCode == student.StudentCode {
			return fmt.Errorf("%w: student code", models.ErrDuplicate)
		}
	}
	s.students[student.UserID] = *student
	tx.onRollback(func() { delete(s.students, student.UserID) })
	return nil
}

func (s *MemoryStore) GetStudent(ctx context.Context, userID string) (*models.Student, error) {
	defer s.read(ctx)()

	st, ok := s.students[userID]
	if !ok {
		return nil, fmt.Errorf("%w: student", models.ErrNotFound)
	}
	return &st, nil
}

func (s *MemoryStore) FindStudentByCode(ctx context.Context, code string) (*models.Student, error) {
	defer s.read(ctx)()

	for _, st := range s.students {
		if st.StudentCode == code {
			return &st, nil
		}
	}
	return nil, fmt.Errorf("%w: student", models.ErrNotFound)
}

func (s *MemoryStore) SearchStudents(ctx context.Context, filter models.StudentFilter) (*models.StudentPage, error) {
	defer s.read(ctx)()

	keyword := strings.ToLower(filter.Keyword)
	matched := []models.StudentProfile{}
	for id, st := range s.students {
		u, ok := s.users[id]
		if !ok {
			continue
		}
		if filter.Status != "" && st.AcademicStatus != filter.Status {
			continue
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(u.FullName), keyword) &&
			!strings.Contains(strings.ToLower(u.Email), keyword) &&
			!strings.Contains(strings.ToLower(st.StudentCode), keyword) {
			continue
		}
		matched = append(matched, *models.NewStudentProfile(&u, &st))
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].FullName != matched[j].FullName {
			return matched[i].FullName < matched[j].FullName
		}
		return matched[i].UserID < matched[j].UserID
	})

	page := &models.StudentPage{Total: int64(len(matched)), Page: filter.Page, Size: filter.Size}
	page.Items = window(matched, (filter.Page-1)*filter.Size, filter.Size)
	return page, nil
}

func (s *MemoryStore) CreateAgent(ctx context.Context, agent *models.Agent) error {
	tx, unlock := s.write(ctx)
	defer unlock()

	if _, ok := s.agents[agent.UserID]; ok {
		return fmt.Errorf("%w: agent", models.ErrDuplicate)
	}
	s.agents[agent.UserID] = *agent
	tx.onRollback(func() { delete(s.agents, agent.UserID) })
	return nil
}

func (s *MemoryStore) GetAgent(ctx context.Context, userID string) (*models.Agent, error) {
	defer s.read(ctx)()

	a, ok := s.agents[userID]
	if !ok {
		return nil, fmt.Errorf("%w: agent", models.ErrNotFound)
	}
	return &a, nil
}

// Conversations

func (s *MemoryStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	tx, unlock := s.write(ctx)
	defer unlock()

	if _, ok := s.conversations[conv.ID]; ok {
		return fmt.Errorf("%w: conversation", models.ErrDuplicate)
	}
	s.conversations[conv.ID] = *conv
	tx.onRollback(func() { delete(s.conversations, conv.ID) })
	return nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	defer s.read(ctx)()

	c, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: conversation", models.ErrNotFound)
	}
	return &c, nil
}

func (s *MemoryStore) UpdateConversation(ctx context.Context, conv *models.Conversation) error {
	tx, unlock := s.write(ctx)
	defer unlock()

	stored, ok := s.conversations[conv.ID]
	if !ok {
		return fmt.Errorf("%w: conversation", models.ErrNotFound)
	}
	if stored.Version != conv.Version {
		return models.ErrConflict
	}

	next := stored
	next.Status = conv.Status
	next.LastMessageAt = conv.LastMessageAt
	next.Title = conv.Title
	if conv.AgentID != nil {
		agentID := *conv.AgentID
		next.AgentID = &agentID
	}
	next.Version++

	s.conversations[conv.ID] = next
	tx.onRollback(func() { s.conversations[conv.ID] = stored })
	conv.Version = next.Version
	return nil
}

func (s *MemoryStore) ListConversations(ctx context.Context, filter models.ConversationFilter) ([]models.Conversation, error) {
	defer s.read(ctx)()

	result := []models.Conversation{}
	for _, c := range s.conversations {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.StudentID != "" && c.StudentID != filter.StudentID {
			continue
		}
		result = append(result, c)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].LastMessageAt.Equal(result[j].LastMessageAt) {
			return result[i].LastMessageAt.After(result[j].LastMessageAt)
		}
		return result[i].ID < result[j].ID
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Messages

func (s *MemoryStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	tx, unlock := s.write(ctx)
	defer unlock()

	convID := msg.ConversationID
	prev := s.messages[convID]
	next := make([]models.Message, len(prev), len(prev)+1)
	copy(next, prev)
	s.messages[convID] = append(next, *msg)
	tx.onRollback(func() {
		if len(prev) == 0 {
			delete(s.messages, convID)
			return
		}
		s.messages[convID] = prev
	})
	return nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]models.Message, int64, error) {
	defer s.read(ctx)()

	all := make([]models.Message, len(s.messages[conversationID]))
	copy(all, s.messages[conversationID])
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	return window(all, offset, limit), int64(len(all)), nil
}

func window[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]T, end-offset)
	copy(out, items[offset:end])
	return out
}
