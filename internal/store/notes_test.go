package store

import (
	"context"
	"testing"
	"time"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/db"
	"github.com/erazemk/gradilisce/internal/model"
)

func TestNoteCRUD(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	a := mustProject(t, database, "A")
	b := mustProject(t, database, "B")
	author, _ := CreateUser(ctx, database, "writer", "hash", model.RoleUser)

	n, err := CreateNote(ctx, database, NoteInput{Title: "Pour slab", ProjectIDs: []int64{a.ID, b.ID}}, &author.ID)
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if len(n.ProjectIDs) != 2 {
		t.Errorf("project ids = %v", n.ProjectIDs)
	}

	if err := UpdateNote(ctx, database, n.ID, NoteInput{Title: "Pour slab Friday", Body: "weather permitting", ProjectIDs: []int64{b.ID}}); err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	got, _ := GetNote(ctx, database, n.ID)
	if got.Title != "Pour slab Friday" || got.Body != "weather permitting" || len(got.ProjectIDs) != 1 {
		t.Errorf("updated note = %+v", got)
	}

	byProject, _ := ListNotes(ctx, database, NoteFilter{ProjectID: a.ID})
	if len(byProject) != 0 {
		t.Errorf("notes for A = %d, want 0", len(byProject))
	}
	mine, _ := ListNotes(ctx, database, NoteFilter{CreatedBy: &author.ID})
	if len(mine) != 1 {
		t.Errorf("author notes = %d, want 1", len(mine))
	}

	if _, err := CreateNote(ctx, database, NoteInput{Title: "x", ProjectIDs: []int64{999}}, nil); !apperr.Is(err, apperr.CodeNotFound) {
		t.Errorf("unknown project: got %v, want NOT_FOUND", err)
	}
	if _, err := CreateNote(ctx, database, NoteInput{}, nil); !apperr.Is(err, apperr.CodeInvalidArgument) {
		t.Errorf("empty title: got %v, want INVALID_ARGUMENT", err)
	}

	if err := DeleteNote(ctx, database, n.ID); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if gone, _ := GetNote(ctx, database, n.ID); gone != nil {
		t.Error("expected note to be deleted")
	}
}

func TestDueReminders(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	early := base.Add(-time.Hour)
	late := base.Add(time.Hour)

	CreateNote(ctx, database, NoteInput{Title: "early", ReminderAt: &early}, nil)
	CreateNote(ctx, database, NoteInput{Title: "exact", ReminderAt: &base}, nil)
	CreateNote(ctx, database, NoteInput{Title: "late", ReminderAt: &late}, nil)
	CreateNote(ctx, database, NoteInput{Title: "none"}, nil)

	due, err := DueReminders(ctx, database, base, nil)
	if err != nil {
		t.Fatalf("DueReminders: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("due = %d notes, want 2", len(due))
	}
	for _, n := range due {
		if n.Title == "late" || n.Title == "none" {
			t.Errorf("unexpected due note %q", n.Title)
		}
	}
}
