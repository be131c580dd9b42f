// Package storage defines the repost history interface and its implementations.
package storage

import (
	"context"

	"repost_bot/internal/model"
)

// Storage records detected reposts. It is an audit trail only: nothing in
// it is ever loaded back into the detection cache.
type Storage interface {
	RecordRepost(ctx context.Context, r *model.RepostRecord) error
	ListReposts(ctx context.Context, channelID string, limit int) ([]model.RepostRecord, error)
	CountReposts(ctx context.Context, channelID string) (int, error)
	TopReposters(ctx context.Context, channelID string, limit int) ([]model.ReposterCount, error)

	Close() error
}
