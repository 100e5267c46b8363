package core

import (
	"testing"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "short content", content: "test content"},
		{name: "empty string", content: ""},
		{name: "long content", content: "This is a much longer piece of content that should still hash consistently"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)
			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestDocumentID(t *testing.T) {
	if DocumentID("acme", "doc-1") != DocumentID("acme", "doc-1") {
		t.Error("DocumentID() is not deterministic")
	}
	if DocumentID("acme", "doc-1") == DocumentID("globex", "doc-1") {
		t.Error("DocumentID() collides across tenants")
	}
	if DocumentID("ab", "c") == DocumentID("a", "bc") {
		t.Error("DocumentID() does not separate tenant from source")
	}
}

func TestNewDocument(t *testing.T) {
	doc := NewDocument("acme", "src-1", "manuals/filter.pdf", "/uploads/src-1")

	if doc.Status != StatusQueued {
		t.Errorf("Status = %s, want queued", doc.Status)
	}
	if doc.Title != "filter.pdf" {
		t.Errorf("Title = %q, want filter.pdf", doc.Title)
	}
	if doc.ID != DocumentID("acme", "src-1") {
		t.Error("ID does not match DocumentID()")
	}
	if doc.CreatedAt.IsZero() || !doc.CreatedAt.Equal(doc.UpdatedAt) {
		t.Error("timestamps not initialized")
	}
}

func TestDocumentStatus(t *testing.T) {
	tests := []struct {
		status   DocumentStatus
		valid    bool
		terminal bool
	}{
		{StatusQueued, true, false},
		{StatusProcessing, true, false},
		{StatusCompleted, true, true},
		{StatusFailed, true, true},
		{DocumentStatus("archived"), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
			if got := tt.status.Terminal(); got != tt.terminal {
				t.Errorf("Terminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestEmbeddingSpace(t *testing.T) {
	a := EmbeddingSpace{Model: "m1", Dimension: 384}
	if !a.Compatible(EmbeddingSpace{Model: "m1", Dimension: 384}) {
		t.Error("identical spaces should be compatible")
	}
	if a.Compatible(EmbeddingSpace{Model: "m1", Dimension: 768}) {
		t.Error("different dimensions should not be compatible")
	}
	if a.Compatible(EmbeddingSpace{Model: "m2", Dimension: 384}) {
		t.Error("different models should not be compatible")
	}
	if !(EmbeddingSpace{}).IsZero() || a.IsZero() {
		t.Error("IsZero() mismatch")
	}
}
