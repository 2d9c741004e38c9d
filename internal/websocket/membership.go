//go:generate go run go.uber.org/mock/mockgen -source=membership.go -destination=../mocks/mock_membership.go -package=mocks
package websocket

import "context"

// MembershipChecker answers whether a user belongs to a chat. The chat store
// satisfies it.
type MembershipChecker interface {
	IsMember(ctx context.Context, chatID, userID string) (bool, error)
}
