package chat

import (
	"testing"
	"time"

	"smartchat/internal/models"
)

func TestRepositoryUpsertInsertsAtHead(t *testing.T) {
	repo := NewRepository()
	repo.UpsertSession(models.ChatSession{ID: "s1", Title: "A"})
	repo.UpsertSession(models.ChatSession{ID: "s2", Title: "B"})

	order := repo.Sessions()
	if order[0].ID != "s2" || order[1].ID != "s1" {
		t.Fatalf("order = [%s %s], want newest first", order[0].ID, order[1].ID)
	}

	// Updating an existing session must not reorder.
	repo.UpsertSession(models.ChatSession{ID: "s1", Title: "A2"})
	order = repo.Sessions()
	if order[0].ID != "s2" {
		t.Error("update must not move the session")
	}
	if order[1].Title != "A2" {
		t.Errorf("title = %q, want updated", order[1].Title)
	}
}

func TestRepositoryTouchReorders(t *testing.T) {
	repo := NewRepository()
	repo.UpsertSession(models.ChatSession{ID: "s1"})
	repo.UpsertSession(models.ChatSession{ID: "s2"})

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if !repo.TouchSession("s1", "latest reply", at) {
		t.Fatal("TouchSession returned false")
	}
	order := repo.Sessions()
	if order[0].ID != "s1" {
		t.Errorf("head = %s, want touched session", order[0].ID)
	}
	if order[0].LastMessage != "latest reply" || !order[0].Timestamp.Equal(at) {
		t.Errorf("preview = (%q, %v)", order[0].LastMessage, order[0].Timestamp)
	}
}

func TestRepositoryReadsAreCopies(t *testing.T) {
	repo := NewRepository()
	repo.UpsertSession(models.ChatSession{ID: "s1", Messages: []models.Message{{ID: "m1", Text: "hi"}}})

	s, _ := repo.Session("s1")
	s.Messages[0].Text = "mutated"
	s.Title = "mutated"

	again, _ := repo.Session("s1")
	if again.Messages[0].Text != "hi" || again.Title != "" {
		t.Error("caller mutation leaked into repository state")
	}
}

func TestRepositoryMarkMessage(t *testing.T) {
	repo := NewRepository()
	repo.UpsertSession(models.ChatSession{ID: "s1"})
	repo.AppendMessage("s1", models.Message{ID: "m1", Status: models.StatusPending})

	if !repo.MarkMessage("s1", "m1", models.StatusConfirmed) {
		t.Fatal("MarkMessage returned false")
	}
	s, _ := repo.Session("s1")
	if s.Messages[0].Status != models.StatusConfirmed {
		t.Errorf("status = %q, want confirmed", s.Messages[0].Status)
	}
	if repo.MarkMessage("s1", "ghost", models.StatusFailed) {
		t.Error("marking an unknown message should report false")
	}
}

func TestRepositoryReplaceAllKeepsValidSelection(t *testing.T) {
	repo := NewRepository()
	repo.UpsertSession(models.ChatSession{ID: "s1"})
	repo.SetCurrent("s1")

	repo.ReplaceAll([]models.ChatSession{{ID: "s1"}, {ID: "s2"}})
	if repo.CurrentID() != "s1" {
		t.Error("selection should survive when the session is still present")
	}

	repo.ReplaceAll([]models.ChatSession{{ID: "s3"}})
	if repo.CurrentID() != "" {
		t.Error("selection should clear when the session disappears")
	}
}
