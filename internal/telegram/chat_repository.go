package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"meal-subscription/internal/storage"
)

// ChatBinding links a Telegram user to the chat that receives their pushes.
type ChatBinding struct {
	UserID    int64     `json:"userId"`
	ChatID    int64     `json:"chatId"`
	Username  string    `json:"username,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ChatRepository persists chat bindings in the key-value store.
type ChatRepository struct {
	kv storage.Store
}

// NewChatRepository creates a new ChatRepository instance
func NewChatRepository(kv storage.Store) *ChatRepository {
	return &ChatRepository{kv: storage.WithPrefix(kv, "telegram:chat:")}
}

// Save stores or replaces the binding for b.UserID
func (r *ChatRepository) Save(ctx context.Context, b ChatBinding) error {
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal chat binding: %w", err)
	}
	return r.kv.Set(ctx, fmt.Sprint(b.UserID), data)
}

// Get returns the binding for userID, or nil if the user never talked to the bot
func (r *ChatRepository) Get(ctx context.Context, userID int64) (*ChatBinding, error) {
	data, err := r.kv.Get(ctx, fmt.Sprint(userID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var b ChatBinding
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode chat binding: %w", err)
	}
	return &b, nil
}
