// Package prefs stores small per-user client preferences that must survive
// a restart: pinned conversations, recent reaction emoji, theme and the
// signed-in credential.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
)

// KV is the key-value backend preferences are stored in. *store.DB,
// redisprefs.Store and Memory implement it.
type KV interface {
	GetPref(ctx context.Context, key string) (string, bool, error)
	SetPref(ctx context.Context, key, value string) error
	DeletePref(ctx context.Context, key string) error
}

const (
	keyPinned     = "pinned_conversations"
	keyEmoji      = "recent_emojis"
	keyTheme      = "theme"
	keyCredential = "credential"
)

// MaxRecentEmoji caps the recent emoji list.
const MaxRecentEmoji = 20

// Preferences provides typed access on top of a KV backend.
type Preferences struct {
	kv KV
}

// New wraps kv.
func New(kv KV) *Preferences {
	return &Preferences{kv: kv}
}

func (p *Preferences) getJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, ok, err := p.kv.GetPref(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (p *Preferences) setJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return p.kv.SetPref(ctx, key, string(b))
}

// PinnedIDs returns the pinned conversation ids in pin order.
func (p *Preferences) PinnedIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if _, err := p.getJSON(ctx, keyPinned, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// SetPinned adds or removes id from the pinned set.
func (p *Preferences) SetPinned(ctx context.Context, id string, pinned bool) error {
	ids, err := p.PinnedIDs(ctx)
	if err != nil {
		return err
	}
	idx := slices.Index(ids, id)
	switch {
	case pinned && idx < 0:
		ids = append(ids, id)
	case !pinned && idx >= 0:
		ids = slices.Delete(ids, idx, idx+1)
	default:
		return nil
	}
	return p.setJSON(ctx, keyPinned, ids)
}

// RecentEmoji returns recently used reaction emoji, most recent first.
func (p *Preferences) RecentEmoji(ctx context.Context) ([]string, error) {
	var list []string
	if _, err := p.getJSON(ctx, keyEmoji, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// PushRecentEmoji moves emoji to the front of the recent list, dropping
// duplicates and anything beyond MaxRecentEmoji.
func (p *Preferences) PushRecentEmoji(ctx context.Context, emoji string) ([]string, error) {
	list, err := p.RecentEmoji(ctx)
	if err != nil {
		return nil, err
	}
	next := make([]string, 0, MaxRecentEmoji)
	next = append(next, emoji)
	for _, e := range list {
		if e != emoji && len(next) < MaxRecentEmoji {
			next = append(next, e)
		}
	}
	if err := p.setJSON(ctx, keyEmoji, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Theme returns the stored theme name, or "" if none.
func (p *Preferences) Theme(ctx context.Context) (string, error) {
	v, _, err := p.kv.GetPref(ctx, keyTheme)
	return v, err
}

// SetTheme stores the theme name.
func (p *Preferences) SetTheme(ctx context.Context, theme string) error {
	return p.kv.SetPref(ctx, keyTheme, theme)
}

// Credential is the persisted sign-in state.
type Credential struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// LoadCredential returns the stored credential; ok is false when signed out.
func (p *Preferences) LoadCredential(ctx context.Context) (Credential, bool, error) {
	var c Credential
	ok, err := p.getJSON(ctx, keyCredential, &c)
	return c, ok && c.Token != "", err
}

// SaveCredential persists c.
func (p *Preferences) SaveCredential(ctx context.Context, c Credential) error {
	return p.setJSON(ctx, keyCredential, c)
}

// ClearCredential forgets the stored credential.
func (p *Preferences) ClearCredential(ctx context.Context) error {
	return p.kv.DeletePref(ctx, keyCredential)
}
