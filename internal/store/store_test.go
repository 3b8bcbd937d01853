package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dropdeck/dropdeck/internal/model"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + cache)", result.Version)
	}
}

func TestOpenMigrated(t *testing.T) {
	db, res, err := OpenMigrated(filepath.Join(t.TempDir(), "deck.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	if !res.Changed || res.From != 0 || res.Version != 2 {
		t.Errorf("result = %+v, want fresh migration to 2", res)
	}
}

func TestMigrateRefusesDirtySchema(t *testing.T) {
	db := testDB(t)
	if _, err := db.Exec(`UPDATE schema_migrations SET dirty = 1`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); !errors.Is(err, ErrDirtySchema) {
		t.Errorf("Migrate() error = %v, want ErrDirtySchema", err)
	}
}

func TestPrefsRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, ok, err := db.GetPref(ctx, "theme"); err != nil || ok {
		t.Fatalf("GetPref on empty db = ok %v, err %v", ok, err)
	}
	if err := db.SetPref(ctx, "theme", "dark"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetPref(ctx, "theme", "light"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := db.GetPref(ctx, "theme")
	if err != nil || !ok || v != "light" {
		t.Errorf("GetPref = %q, %v, %v", v, ok, err)
	}
	if err := db.DeletePref(ctx, "theme"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := db.GetPref(ctx, "theme"); ok {
		t.Error("pref still present after delete")
	}
}

func TestCheckpoints(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if v, err := db.GetCheckpoint(ctx, "last_sync:conversations"); err != nil || v != "" {
		t.Fatalf("missing checkpoint = %q, %v", v, err)
	}
	if err := db.UpdateCheckpoint(ctx, "last_sync:conversations", "123"); err != nil {
		t.Fatal(err)
	}
	if v, _ := db.GetCheckpoint(ctx, "last_sync:conversations"); v != "123" {
		t.Errorf("checkpoint = %q, want 123", v)
	}
}

func TestConversationCacheReplacesList(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	t0 := time.UnixMilli(1_700_000_000_000)
	first := []model.Conversation{
		{ID: "1", Name: "Ops", CreatedAt: t0},
		{ID: "2", Name: "Dev", CreatedAt: t0, LastMessage: &model.MessageSummary{ID: "m", Preview: "hi", CreatedAt: t0.Add(time.Hour)}},
	}
	if err := db.SaveConversations(ctx, first); err != nil {
		t.Fatal(err)
	}
	got, err := db.LoadConversations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "2" {
		t.Fatalf("loaded = %+v, want Dev first", got)
	}
	if got[0].LastMessage == nil || got[0].LastMessage.Preview != "hi" {
		t.Errorf("last message = %+v", got[0].LastMessage)
	}

	if err := db.SaveConversations(ctx, first[:1]); err != nil {
		t.Fatal(err)
	}
	got, _ = db.LoadConversations(ctx)
	if len(got) != 1 {
		t.Errorf("cache kept %d conversations, want 1", len(got))
	}
}

func TestMessageCacheSkipsPlaceholders(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	msgs := []model.Message{
		{ID: "1", ConversationID: "g", SenderName: "ana", Body: model.TextBody("Hello World"), CreatedAt: time.UnixMilli(1000), Status: model.StatusSent},
		{ID: "2", ConversationID: "g", Body: model.PollBody("Lunch?", []string{"a", "b"}), CreatedAt: time.UnixMilli(2000), Status: model.StatusSent},
		{ID: model.LocalIDPrefix + "x", ConversationID: "g", Body: model.TextBody("pending"), Status: model.StatusSending},
	}
	if err := db.SaveMessages(ctx, "g", msgs); err != nil {
		t.Fatal(err)
	}
	got, err := db.LoadMessages(ctx, "g", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d messages, want 2", len(got))
	}
	if got[0].ID != "1" || got[1].Body.Poll == nil || got[1].Body.Poll.Question != "Lunch?" {
		t.Errorf("loaded = %+v", got)
	}
}

func TestLoadMessagesKeepsLatest(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	var msgs []model.Message
	for i := range 5 {
		msgs = append(msgs, model.Message{ID: string(rune('a' + i)), Body: model.TextBody("x"), CreatedAt: time.UnixMilli(int64(i))})
	}
	if err := db.SaveMessages(ctx, "g", msgs); err != nil {
		t.Fatal(err)
	}
	got, _ := db.LoadMessages(ctx, "g", 2)
	if len(got) != 2 || got[0].ID != "d" || got[1].ID != "e" {
		t.Errorf("loaded = %v", got)
	}
}

func TestSearchMessages(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	msgs := []model.Message{
		{ID: "1", Body: model.TextBody("Deploy at 5PM"), CreatedAt: time.UnixMilli(1)},
		{ID: "2", Body: model.TextBody("100% done"), CreatedAt: time.UnixMilli(2)},
		{ID: "3", Body: model.FileBody(model.FileRef{Name: "deploy_plan.pdf"}), CreatedAt: time.UnixMilli(3)},
	}
	if err := db.SaveMessages(ctx, "g", msgs); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"deploy", []string{"3", "1"}},
		{"%", []string{"2"}},
		{"y_p", []string{"3"}},
		{"nothing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := db.SearchMessages(ctx, tt.query, 10)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d results, want %d", len(got), len(tt.want))
			}
			for i, m := range got {
				if m.ID != tt.want[i] {
					t.Errorf("result %d = %s, want %s", i, m.ID, tt.want[i])
				}
			}
		})
	}
}

func TestOutboxJournal(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.QueueOutbox(ctx, "c1", "g", "send_message", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := db.QueueOutbox(ctx, "c2", "g", "send_message", "bye"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSending(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSent(ctx, "c1", "srv-1"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxFailed(ctx, "c2", "boom"); err != nil {
		t.Fatal(err)
	}

	sent, err := db.ListOutbox(ctx, OutboxSent, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sent) != 1 || sent[0].ServerMsgID != "srv-1" {
		t.Errorf("sent = %+v", sent)
	}
	failed, _ := db.ListOutbox(ctx, OutboxFailed, 10)
	if len(failed) != 1 || failed[0].ErrorMessage != "boom" {
		t.Errorf("failed = %+v", failed)
	}
	all, _ := db.ListOutbox(ctx, "", 10)
	if len(all) != 2 {
		t.Errorf("all = %d entries, want 2", len(all))
	}
}

func TestAbandonStaleOutbox(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_ = db.QueueOutbox(ctx, "c1", "g", "send_message", "a")
	_ = db.QueueOutbox(ctx, "c2", "g", "send_message", "b")
	_ = db.MarkOutboxSending(ctx, "c2")
	_ = db.QueueOutbox(ctx, "c3", "g", "send_message", "c")
	_ = db.MarkOutboxSent(ctx, "c3", "s3")

	n, err := db.AbandonStaleOutbox(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("abandoned %d, want 2", n)
	}
	left, _ := db.ListOutbox(ctx, OutboxAbandoned, 10)
	if len(left) != 2 {
		t.Errorf("abandoned entries = %d, want 2", len(left))
	}
}
