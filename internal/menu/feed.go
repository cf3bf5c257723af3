package menu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"meal-subscription/internal/ghost"
	"meal-subscription/internal/subscription"
)

// DefaultTag marks weekly menu posts on the vendor blog.
const DefaultTag = "weekly-menu"

// ErrNoMenu is returned when the vendor has not published a usable menu.
var ErrNoMenu = errors.New("no weekly menu published")

// Feed reads and publishes weekly menus through Ghost.
type Feed struct {
	client ghost.Client
	tag    string
	logger *slog.Logger
}

// NewFeed creates a Feed. An empty tag means DefaultTag.
func NewFeed(client ghost.Client, tag string, logger *slog.Logger) *Feed {
	if tag == "" {
		tag = DefaultTag
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{client: client, tag: tag, logger: logger}
}

// WeeklyMenu returns the menu of the newest tagged post.
func (f *Feed) WeeklyMenu(ctx context.Context) ([]subscription.DailyMenu, error) {
	posts, err := f.client.FetchPosts(ctx, f.tag, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch menu posts: %w", err)
	}
	if len(posts) == 0 {
		return nil, ErrNoMenu
	}

	days, err := ParseHTML(posts[0].HTML)
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("post %s: %w", posts[0].ID, ErrNoMenu)
	}
	f.logger.Info("weekly menu loaded from feed", "post_id", posts[0].ID, "days", len(days))
	return days, nil
}

// Publish posts menu as the vendor's week.
func (f *Feed) Publish(ctx context.Context, vendorName string, menu []subscription.DailyMenu, publish bool) (*ghost.Post, error) {
	if len(menu) == 0 {
		return nil, &subscription.ValidationError{Field: "menu", Reason: "must not be empty"}
	}

	title := fmt.Sprintf("%s: menu for the week of %s", vendorName, menu[0].Date.In(time.UTC).Format("2 January 2006"))
	post, err := f.client.CreatePost(ctx, title, RenderHTML(menu), []string{f.tag}, publish)
	if err != nil {
		return nil, fmt.Errorf("failed to publish menu: %w", err)
	}
	f.logger.Info("weekly menu published", "post_id", post.ID, "days", len(menu))
	return post, nil
}
