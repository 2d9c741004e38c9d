package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"chatrelay/server/internal/apperror"
	"chatrelay/server/internal/mocks"
	"chatrelay/server/internal/models"
	"chatrelay/server/internal/store"
	"chatrelay/server/internal/store/storetest"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type ChatServiceSuite struct {
	suite.Suite
	store    *storetest.Memory
	chats    *ChatService
	messages *MessageService

	alice, bob, carol, dave string
}

func TestChatService(t *testing.T) {
	suite.Run(t, new(ChatServiceSuite))
}

func (s *ChatServiceSuite) SetupTest() {
	s.store = storetest.NewMemory()
	s.chats = NewChatService(s.store, quietLogger(), time.Second)
	s.messages = NewMessageService(s.store, quietLogger(), time.Second)

	s.alice = s.store.AddUser("Alice", "alice@example.com")
	s.bob = s.store.AddUser("Bob", "bob@example.com")
	s.carol = s.store.AddUser("Carol", "carol@example.com")
	s.dave = s.store.AddUser("Dave", "dave@example.com")
}

func (s *ChatServiceSuite) TestFindOrCreateDirectChat_ReturnsSameChat() {
	ctx := context.Background()

	first, err := s.chats.FindOrCreateDirectChat(ctx, s.alice, s.bob)
	s.Require().NoError(err)
	s.False(first.IsGroupChat)
	s.Nil(first.GroupAdmin)
	s.Equal("Chat between Alice and Bob", first.ChatName)
	s.ElementsMatch([]string{s.alice, s.bob}, memberIDs(first))

	second, err := s.chats.FindOrCreateDirectChat(ctx, s.alice, s.bob)
	s.Require().NoError(err)
	s.Equal(first.ID, second.ID)

	reversed, err := s.chats.FindOrCreateDirectChat(ctx, s.bob, s.alice)
	s.Require().NoError(err)
	s.Equal(first.ID, reversed.ID)
}

func (s *ChatServiceSuite) TestFindOrCreateDirectChat_Concurrent() {
	const callers = 16

	var wg sync.WaitGroup
	ids := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := s.alice, s.bob
			if i%2 == 1 {
				a, b = b, a
			}
			chat, err := s.chats.FindOrCreateDirectChat(context.Background(), a, b)
			errs[i] = err
			if err == nil {
				ids[i] = chat.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range errs {
		s.Require().NoError(errs[i])
		s.Equal(ids[0], ids[i])
	}

	chats, err := s.chats.ListChats(context.Background(), s.alice)
	s.Require().NoError(err)
	s.Len(chats, 1)
}

func (s *ChatServiceSuite) TestFindOrCreateDirectChat_Rejects() {
	ctx := context.Background()

	_, err := s.chats.FindOrCreateDirectChat(ctx, s.alice, "")
	s.ErrorIs(err, apperror.ErrInvalidInput)

	_, err = s.chats.FindOrCreateDirectChat(ctx, s.alice, "not-a-uuid")
	s.ErrorIs(err, apperror.ErrInvalidInput)

	_, err = s.chats.FindOrCreateDirectChat(ctx, s.alice, s.alice)
	s.ErrorIs(err, apperror.ErrInvalidInput)

	_, err = s.chats.FindOrCreateDirectChat(ctx, s.alice, uuid.NewString())
	s.ErrorIs(err, apperror.ErrNotFound)
}

// spellings returns forms of id that uuid.Parse accepts besides the canonical one.
func spellings(id string) map[string]string {
	return map[string]string{
		"upper case": strings.ToUpper(id),
		"braces":     "{" + id + "}",
		"urn":        "urn:uuid:" + id,
		"no hyphens": strings.ReplaceAll(id, "-", ""),
	}
}

func (s *ChatServiceSuite) TestFindOrCreateDirectChat_NonCanonicalIDs() {
	ctx := context.Background()

	first, err := s.chats.FindOrCreateDirectChat(ctx, s.alice, s.bob)
	s.Require().NoError(err)

	for name, other := range spellings(s.bob) {
		s.Run(name, func() {
			chat, err := s.chats.FindOrCreateDirectChat(ctx, s.alice, other)
			s.Require().NoError(err)
			s.Equal(first.ID, chat.ID)

			found, err := s.chats.FindDirectChat(ctx, s.alice, other)
			s.Require().NoError(err)
			s.Equal(first.ID, found.ID)
		})
	}

	_, err = s.chats.FindOrCreateDirectChat(ctx, s.alice, strings.ToUpper(s.alice))
	s.ErrorIs(err, apperror.ErrInvalidInput)

	chats, err := s.chats.ListChats(ctx, s.alice)
	s.Require().NoError(err)
	s.Len(chats, 1)
}

func (s *ChatServiceSuite) TestFindOrCreateDirectChat_ConcurrentMixedCase() {
	const callers = 16

	var wg sync.WaitGroup
	ids := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			other := s.bob
			if i%2 == 1 {
				other = strings.ToUpper(s.bob)
			}
			chat, err := s.chats.FindOrCreateDirectChat(context.Background(), s.alice, other)
			errs[i] = err
			if err == nil {
				ids[i] = chat.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range errs {
		s.Require().NoError(errs[i])
		s.Equal(ids[0], ids[i])
	}
}

func (s *ChatServiceSuite) TestFindDirectChat() {
	ctx := context.Background()

	_, err := s.chats.FindDirectChat(ctx, s.alice, s.bob)
	s.ErrorIs(err, apperror.ErrNotFound)

	created, err := s.chats.FindOrCreateDirectChat(ctx, s.alice, s.bob)
	s.Require().NoError(err)

	found, err := s.chats.FindDirectChat(ctx, s.bob, s.alice)
	s.Require().NoError(err)
	s.Equal(created.ID, found.ID)

	_, err = s.chats.FindDirectChat(ctx, s.alice, "bad")
	s.ErrorIs(err, apperror.ErrInvalidInput)
}

func (s *ChatServiceSuite) TestCreateGroupChat() {
	chat, err := s.chats.CreateGroupChat(context.Background(), s.alice, " Friends ",
		[]string{s.bob, s.carol, s.bob, s.alice})
	s.Require().NoError(err)

	s.True(chat.IsGroupChat)
	s.Equal("Friends", chat.ChatName)
	s.Require().NotNil(chat.GroupAdmin)
	s.Equal(s.alice, chat.GroupAdmin.ID)
	s.ElementsMatch([]string{s.alice, s.bob, s.carol}, memberIDs(chat))
}

func (s *ChatServiceSuite) TestCreateGroupChat_Rejects() {
	ctx := context.Background()

	tests := []struct {
		name    string
		title   string
		members []string
		kind    error
	}{
		{"blank name", "  ", []string{s.bob, s.carol}, apperror.ErrInvalidInput},
		{"one member", "G", []string{s.bob}, apperror.ErrInvalidInput},
		{"duplicates collapse", "G", []string{s.bob, s.bob}, apperror.ErrInvalidInput},
		{"admin does not count", "G", []string{s.alice, s.bob}, apperror.ErrInvalidInput},
		{"malformed id", "G", []string{s.bob, "nope"}, apperror.ErrInvalidInput},
		{"unknown user", "G", []string{s.bob, uuid.NewString()}, apperror.ErrNotFound},
		{"admin in upper case does not count", "G", []string{strings.ToUpper(s.alice), s.carol}, apperror.ErrInvalidInput},
		{"admin in braces does not count", "G", []string{"{" + s.alice + "}", s.carol}, apperror.ErrInvalidInput},
		{"member spelled twice", "G", []string{s.bob, strings.ToUpper(s.bob)}, apperror.ErrInvalidInput},
		{"member without hyphens", "G", []string{s.bob, strings.ReplaceAll(s.bob, "-", "")}, apperror.ErrInvalidInput},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.chats.CreateGroupChat(ctx, s.alice, tt.title, tt.members)
			s.ErrorIs(err, tt.kind)
		})
	}
}

func (s *ChatServiceSuite) TestCreateGroupChat_CanonicalMembers() {
	chat, err := s.chats.CreateGroupChat(context.Background(), s.alice, "G",
		[]string{strings.ToUpper(s.bob), "{" + s.carol + "}", s.bob})
	s.Require().NoError(err)
	s.ElementsMatch([]string{s.alice, s.bob, s.carol}, memberIDs(chat))
}

func (s *ChatServiceSuite) TestMembershipChanges_AcceptNonCanonicalIDs() {
	ctx := context.Background()
	group, err := s.chats.CreateGroupChat(ctx, s.alice, "G", []string{s.bob, s.carol})
	s.Require().NoError(err)

	added, err := s.chats.AddMember(ctx, strings.ToUpper(group.ID), "{"+s.dave+"}")
	s.Require().NoError(err)
	s.Equal(group.ID, added.ID)
	s.ElementsMatch([]string{s.alice, s.bob, s.carol, s.dave}, memberIDs(added))

	removed, err := s.chats.RemoveMember(ctx, group.ID, strings.ToUpper(s.dave))
	s.Require().NoError(err)
	s.ElementsMatch([]string{s.alice, s.bob, s.carol}, memberIDs(removed))

	renamed, err := s.chats.RenameGroupChat(ctx, "urn:uuid:"+group.ID, "Renamed")
	s.Require().NoError(err)
	s.Equal(group.ID, renamed.ID)
}

func (s *ChatServiceSuite) TestRenameGroupChat() {
	ctx := context.Background()
	group, err := s.chats.CreateGroupChat(ctx, s.alice, "Old", []string{s.bob, s.carol})
	s.Require().NoError(err)

	renamed, err := s.chats.RenameGroupChat(ctx, group.ID, "New")
	s.Require().NoError(err)
	s.Equal("New", renamed.ChatName)
	s.Equal(group.ID, renamed.ID)

	_, err = s.chats.RenameGroupChat(ctx, uuid.NewString(), "New")
	s.ErrorIs(err, apperror.ErrNotFound)

	_, err = s.chats.RenameGroupChat(ctx, group.ID, " ")
	s.ErrorIs(err, apperror.ErrInvalidInput)

	_, err = s.chats.RenameGroupChat(ctx, "bad", "New")
	s.ErrorIs(err, apperror.ErrInvalidInput)
}

func (s *ChatServiceSuite) TestAddAndRemoveMember() {
	ctx := context.Background()
	group, err := s.chats.CreateGroupChat(ctx, s.alice, "G", []string{s.bob, s.carol})
	s.Require().NoError(err)

	added, err := s.chats.AddMember(ctx, group.ID, s.dave)
	s.Require().NoError(err)
	s.ElementsMatch([]string{s.alice, s.bob, s.carol, s.dave}, memberIDs(added))

	again, err := s.chats.AddMember(ctx, group.ID, s.dave)
	s.Require().NoError(err)
	s.Len(again.Users, 4)

	removed, err := s.chats.RemoveMember(ctx, group.ID, s.bob)
	s.Require().NoError(err)
	s.ElementsMatch([]string{s.alice, s.carol, s.dave}, memberIDs(removed))

	absent, err := s.chats.RemoveMember(ctx, group.ID, s.bob)
	s.Require().NoError(err)
	s.Len(absent.Users, 3)

	_, err = s.chats.AddMember(ctx, uuid.NewString(), s.dave)
	s.ErrorIs(err, apperror.ErrNotFound)

	_, err = s.chats.AddMember(ctx, group.ID, uuid.NewString())
	s.ErrorIs(err, apperror.ErrNotFound)

	_, err = s.chats.RemoveMember(ctx, uuid.NewString(), s.dave)
	s.ErrorIs(err, apperror.ErrNotFound)
}

func (s *ChatServiceSuite) TestDirectChatMembershipIsFixed() {
	ctx := context.Background()
	direct, err := s.chats.FindOrCreateDirectChat(ctx, s.alice, s.bob)
	s.Require().NoError(err)

	_, err = s.chats.AddMember(ctx, direct.ID, s.carol)
	s.ErrorIs(err, apperror.ErrInvalidInput)

	_, err = s.chats.RemoveMember(ctx, direct.ID, s.bob)
	s.ErrorIs(err, apperror.ErrInvalidInput)
}

func (s *ChatServiceSuite) TestListChats_LatestMessageAndOrder() {
	ctx := context.Background()

	direct, err := s.chats.FindOrCreateDirectChat(ctx, s.alice, s.bob)
	s.Require().NoError(err)
	group, err := s.chats.CreateGroupChat(ctx, s.alice, "G", []string{s.bob, s.carol})
	s.Require().NoError(err)

	chats, err := s.chats.ListChats(ctx, s.alice)
	s.Require().NoError(err)
	s.Require().Len(chats, 2)
	s.Equal(group.ID, chats[0].ID)
	s.Nil(chats[0].LatestMessage)

	_, err = s.messages.AppendMessage(ctx, direct.ID, s.alice, "hi")
	s.Require().NoError(err)

	chats, err = s.chats.ListChats(ctx, s.alice)
	s.Require().NoError(err)
	s.Require().Len(chats, 2)
	s.Equal(direct.ID, chats[0].ID)
	s.Require().NotNil(chats[0].LatestMessage)
	s.Equal("hi", chats[0].LatestMessage.Content)
	s.Equal(s.alice, chats[0].LatestMessage.Sender.ID)

	carolChats, err := s.chats.ListChats(ctx, s.carol)
	s.Require().NoError(err)
	s.Require().Len(carolChats, 1)
	s.Equal(group.ID, carolChats[0].ID)
}

func memberIDs(chat *models.ChatWithMembers) []string {
	ids := make([]string, 0, len(chat.Users))
	for _, u := range chat.Users {
		ids = append(ids, u.ID)
	}
	return ids
}

func TestChatService_TimeoutIsDistinct(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)

	st.EXPECT().
		ListUserChats(gomock.Any(), "u1").
		DoAndReturn(func(ctx context.Context, _ string) ([]models.Chat, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	svc := NewChatService(st, quietLogger(), 10*time.Millisecond)
	_, err := svc.ListChats(context.Background(), "u1")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrTimeout)
	assert.NotErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, 504, apperror.Status(err))
}

func TestChatService_StoreFailureIsInternal(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)

	chatID := uuid.NewString()
	st.EXPECT().RenameChat(gomock.Any(), chatID, "x").Return(nil, errors.New("connection reset"))

	svc := NewChatService(st, quietLogger(), time.Second)
	_, err := svc.RenameGroupChat(context.Background(), chatID, "x")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrInternal)
	assert.Equal(t, "Internal server error", apperror.PublicMessage(err))
}

func TestChatService_CreateRaceReturnsExisting(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)

	alice, bob := uuid.NewString(), uuid.NewString()
	existing := &models.Chat{ID: uuid.NewString(), ChatName: "Chat between Alice and Bob"}

	gomock.InOrder(
		st.EXPECT().FindDirectChat(gomock.Any(), alice, bob).Return(nil, store.ErrChatNotFound),
		st.EXPECT().GetUsersByIDs(gomock.Any(), []string{alice, bob}).
			Return([]models.User{{ID: alice, Name: "Alice"}, {ID: bob, Name: "Bob"}}, nil),
		// another instance inserted the pair in between: the store hands back its row
		st.EXPECT().CreateDirectChat(gomock.Any(), alice, bob, "Chat between Alice and Bob").Return(existing, nil),
		st.EXPECT().ListMembers(gomock.Any(), existing.ID).Return([]models.UserResponse{{ID: alice}, {ID: bob}}, nil),
		st.EXPECT().LatestMessage(gomock.Any(), existing.ID).Return(nil, nil),
	)

	svc := NewChatService(st, quietLogger(), time.Second)
	chat, err := svc.FindOrCreateDirectChat(context.Background(), alice, bob)

	require.NoError(t, err)
	assert.Equal(t, existing.ID, chat.ID)
	assert.Len(t, chat.Users, 2)
}

func TestChatService_SharedLookupIgnoresCallerCancellation(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)

	alice, bob := uuid.NewString(), uuid.NewString()
	existing := &models.Chat{ID: uuid.NewString()}

	st.EXPECT().
		FindDirectChat(gomock.Any(), alice, bob).
		DoAndReturn(func(ctx context.Context, _, _ string) (*models.Chat, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline, "lookup keeps the query timeout")
			return existing, nil
		})
	st.EXPECT().ListMembers(gomock.Any(), existing.ID).Return([]models.UserResponse{{ID: alice}, {ID: bob}}, nil)
	st.EXPECT().LatestMessage(gomock.Any(), existing.ID).Return(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewChatService(st, quietLogger(), time.Second)
	chat, err := svc.FindOrCreateDirectChat(ctx, alice, strings.ToUpper(bob))

	require.NoError(t, err)
	assert.Equal(t, existing.ID, chat.ID)
}

func TestChatService_DuplicateMemberIsInvalidInput(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)

	admin, b, c := uuid.NewString(), uuid.NewString(), uuid.NewString()
	st.EXPECT().CreateGroupChat(gomock.Any(), "G", admin, []string{b, c}).Return(nil, store.ErrDuplicateMember)

	_, err := NewChatService(st, quietLogger(), time.Second).
		CreateGroupChat(context.Background(), admin, "G", []string{b, c})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
	assert.Equal(t, 400, apperror.Status(err))
}
