package prefs

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"testing"

	"github.com/dropdeck/dropdeck/internal/store"
)

func backends(t *testing.T) map[string]KV {
	t.Helper()
	db, _, err := store.OpenMigrated(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return map[string]KV{
		"memory": NewMemory(),
		"sqlite": db,
	}
}

func TestPinnedIDs(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := New(kv)
			for _, id := range []string{"1", "2", "1"} {
				if err := p.SetPinned(ctx, id, true); err != nil {
					t.Fatal(err)
				}
			}
			if err := p.SetPinned(ctx, "3", false); err != nil {
				t.Fatal(err)
			}
			got, err := p.PinnedIDs(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(got, []string{"1", "2"}) {
				t.Errorf("pinned = %v, want [1 2]", got)
			}
			_ = p.SetPinned(ctx, "1", false)
			got, _ = p.PinnedIDs(ctx)
			if !slices.Equal(got, []string{"2"}) {
				t.Errorf("pinned after unpin = %v, want [2]", got)
			}
		})
	}
}

func TestRecentEmojiMostRecentFirstDeduped(t *testing.T) {
	ctx := context.Background()
	p := New(NewMemory())
	for _, e := range []string{"😀", "🎉", "😀"} {
		if _, err := p.PushRecentEmoji(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := p.RecentEmoji(ctx)
	if !slices.Equal(got, []string{"😀", "🎉"}) {
		t.Errorf("recent = %v", got)
	}
}

func TestRecentEmojiCapped(t *testing.T) {
	ctx := context.Background()
	p := New(NewMemory())
	for i := range 30 {
		if _, err := p.PushRecentEmoji(ctx, fmt.Sprint(i)); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := p.RecentEmoji(ctx)
	if len(got) != MaxRecentEmoji {
		t.Fatalf("len = %d, want %d", len(got), MaxRecentEmoji)
	}
	if got[0] != "29" || got[MaxRecentEmoji-1] != "10" {
		t.Errorf("recent = %v", got)
	}
}

func TestCredentialLifecycle(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := New(kv)
			if _, ok, err := p.LoadCredential(ctx); err != nil || ok {
				t.Fatalf("LoadCredential before save = %v, %v", ok, err)
			}
			want := Credential{Token: "tok", UserID: "7", Username: "ana"}
			if err := p.SaveCredential(ctx, want); err != nil {
				t.Fatal(err)
			}
			got, ok, err := p.LoadCredential(ctx)
			if err != nil || !ok || got != want {
				t.Errorf("LoadCredential = %+v, %v, %v", got, ok, err)
			}
			if err := p.ClearCredential(ctx); err != nil {
				t.Fatal(err)
			}
			if _, ok, _ := p.LoadCredential(ctx); ok {
				t.Error("credential survived ClearCredential")
			}
		})
	}
}

func TestTheme(t *testing.T) {
	ctx := context.Background()
	p := New(NewMemory())
	if v, _ := p.Theme(ctx); v != "" {
		t.Errorf("default theme = %q", v)
	}
	_ = p.SetTheme(ctx, "dark")
	if v, _ := p.Theme(ctx); v != "dark" {
		t.Errorf("theme = %q", v)
	}
}
