package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"chatrelay/server/internal/apperror"
	"chatrelay/server/internal/mocks"
	"chatrelay/server/internal/store/storetest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestMessageService_AppendAndList(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	st := storetest.NewMemory()
	alice := st.AddUser("Alice", "alice@example.com")
	bob := st.AddUser("Bob", "bob@example.com")

	chats := NewChatService(st, quietLogger(), time.Second)
	messages := NewMessageService(st, quietLogger(), time.Second)

	chat, err := chats.FindOrCreateDirectChat(ctx, alice, bob)
	r.NoError(err)

	for i := 0; i < 5; i++ {
		sender := alice
		if i%2 == 1 {
			sender = bob
		}
		msg, err := messages.AppendMessage(ctx, chat.ID, sender, fmt.Sprintf("m%d", i))
		r.NoError(err)
		r.Equal(sender, msg.Sender.ID)
		r.Equal(chat.ID, msg.ChatID)
	}

	list, err := messages.ListMessages(ctx, chat.ID, bob, Page{})
	r.NoError(err)
	r.Len(list, 5)
	r.Equal("m4", list[0].Content)
	r.Equal("m0", list[4].Content)
	for i := 1; i < len(list); i++ {
		r.False(list[i].CreatedAt.After(list[i-1].CreatedAt), "history must be newest first")
	}

	page, err := messages.ListMessages(ctx, chat.ID, alice, Page{Limit: 2, Offset: 1})
	r.NoError(err)
	r.Len(page, 2)
	r.Equal("m3", page[0].Content)
	r.Equal("m2", page[1].Content)
}

func TestMessageService_AppendRejects(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	st := storetest.NewMemory()
	alice := st.AddUser("Alice", "alice@example.com")
	bob := st.AddUser("Bob", "bob@example.com")
	eve := st.AddUser("Eve", "eve@example.com")

	chat, err := NewChatService(st, quietLogger(), time.Second).FindOrCreateDirectChat(ctx, alice, bob)
	r.NoError(err)

	messages := NewMessageService(st, quietLogger(), time.Second)

	_, err = messages.AppendMessage(ctx, chat.ID, alice, "   ")
	r.ErrorIs(err, apperror.ErrInvalidInput)

	_, err = messages.AppendMessage(ctx, "bad", alice, "hi")
	r.ErrorIs(err, apperror.ErrInvalidInput)

	_, err = messages.AppendMessage(ctx, uuid.NewString(), alice, "hi")
	r.ErrorIs(err, apperror.ErrInvalidInput)

	_, err = messages.AppendMessage(ctx, chat.ID, eve, "hi")
	r.ErrorIs(err, apperror.ErrInvalidInput)

	list, err := messages.ListMessages(ctx, chat.ID, alice, Page{})
	r.NoError(err)
	r.Empty(list)
}

func TestMessageService_ListRequiresMembership(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	st := storetest.NewMemory()
	alice := st.AddUser("Alice", "alice@example.com")
	bob := st.AddUser("Bob", "bob@example.com")
	eve := st.AddUser("Eve", "eve@example.com")

	chat, err := NewChatService(st, quietLogger(), time.Second).FindOrCreateDirectChat(ctx, alice, bob)
	r.NoError(err)

	messages := NewMessageService(st, quietLogger(), time.Second)

	_, err = messages.ListMessages(ctx, chat.ID, eve, Page{})
	r.ErrorIs(err, apperror.ErrNotFound)

	_, err = messages.ListMessages(ctx, "bad", alice, Page{})
	r.ErrorIs(err, apperror.ErrInvalidInput)
}

func TestPageNormalize(t *testing.T) {
	r := require.New(t)

	r.Equal(Page{Limit: DefaultPageLimit}, Page{}.Normalize())
	r.Equal(Page{Limit: MaxPageLimit, Offset: 3}, Page{Limit: 10_000, Offset: 3}.Normalize())
	r.Equal(Page{Limit: 7}, Page{Limit: 7, Offset: -4}.Normalize())
}

func TestMessageService_ListPassesNormalizedPage(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)

	chatID := uuid.NewString()
	st.EXPECT().IsMember(gomock.Any(), chatID, "u1").Return(true, nil)
	st.EXPECT().ListMessages(gomock.Any(), chatID, MaxPageLimit, 0).Return(nil, nil)

	_, err := NewMessageService(st, quietLogger(), time.Second).
		ListMessages(context.Background(), chatID, "u1", Page{Limit: 1000})
	require.NoError(t, err)
}

func TestMessageService_NonCanonicalChatID(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	st := storetest.NewMemory()
	alice := st.AddUser("Alice", "alice@example.com")
	bob := st.AddUser("Bob", "bob@example.com")

	chat, err := NewChatService(st, quietLogger(), time.Second).FindOrCreateDirectChat(ctx, alice, bob)
	r.NoError(err)

	messages := NewMessageService(st, quietLogger(), time.Second)

	msg, err := messages.AppendMessage(ctx, strings.ToUpper(chat.ID), alice, "hi")
	r.NoError(err)
	r.Equal(chat.ID, msg.ChatID)

	list, err := messages.ListMessages(ctx, "{"+chat.ID+"}", bob, Page{})
	r.NoError(err)
	r.Len(list, 1)
}
