package store

import (
	"context"
	"testing"
	"time"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/db"
	"github.com/erazemk/gradilisce/internal/model"
)

func TestPastProjectKeyIsSingleUse(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	owner, _ := CreateUser(ctx, database, "builder", "hash", model.RoleUser)
	other, _ := CreateUser(ctx, database, "other", "hash", model.RoleUser)

	draft, err := StartPastProject(ctx, database, &owner.ID)
	if err != nil {
		t.Fatalf("StartPastProject: %v", err)
	}
	if draft.Status != model.PastProjectDraft || draft.ProjectKey == "" {
		t.Fatalf("draft = %+v", draft)
	}

	if _, err := FinalizePastProject(ctx, database, draft.ProjectKey, "Villa", "", &other.ID); !apperr.Is(err, apperr.CodePermissionDenied) {
		t.Errorf("foreign key: got %v, want PERMISSION_DENIED", err)
	}
	if _, err := FinalizePastProject(ctx, database, draft.ProjectKey, "", "", &owner.ID); !apperr.Is(err, apperr.CodeInvalidArgument) {
		t.Errorf("no name: got %v, want INVALID_ARGUMENT", err)
	}

	created, err := FinalizePastProject(ctx, database, draft.ProjectKey, "Villa", "Coast Rd 1", &owner.ID)
	if err != nil {
		t.Fatalf("FinalizePastProject: %v", err)
	}
	if created.Status != model.PastProjectCreated || created.CreatedAt == nil || created.Address != "Coast Rd 1" {
		t.Errorf("created = %+v", created)
	}

	if _, err := FinalizePastProject(ctx, database, draft.ProjectKey, "Again", "", &owner.ID); !apperr.Is(err, apperr.CodeInvalidState) {
		t.Errorf("reuse: got %v, want INVALID_STATE", err)
	}
	if _, err := FinalizePastProject(ctx, database, "nope", "X", "", &owner.ID); !apperr.Is(err, apperr.CodeNotFound) {
		t.Errorf("unknown key: got %v, want NOT_FOUND", err)
	}

	list, _ := ListPastProjects(ctx, database, &owner.ID)
	if len(list) != 1 {
		t.Errorf("past projects = %d, want 1", len(list))
	}
}

func TestStaleDraftsAndDelete(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	realNow := now
	t.Cleanup(func() { now = realNow })

	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	now = func() time.Time { return start }
	old, _ := StartPastProject(ctx, database, nil)

	now = func() time.Time { return start.Add(48 * time.Hour) }
	fresh, _ := StartPastProject(ctx, database, nil)

	_, err := CreateMedia(ctx, database, model.Media{
		OwnerKind: model.MediaOwnerPastProject,
		OwnerRef:  old.ProjectKey,
		ObjectKey: "past/" + old.ProjectKey + "/a.jpg",
		Filename:  "a.jpg",
		MIME:      "image/jpeg",
		Size:      10,
	})
	if err != nil {
		t.Fatalf("CreateMedia: %v", err)
	}

	stale, err := StaleDrafts(ctx, database, start.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("StaleDrafts: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != old.ID {
		t.Fatalf("stale = %+v, want only %d", stale, old.ID)
	}

	if err := DeletePastProject(ctx, database, old.ID); err != nil {
		t.Fatalf("DeletePastProject: %v", err)
	}
	media, _ := ListMedia(ctx, database, model.MediaOwnerPastProject, old.ProjectKey)
	if len(media) != 0 {
		t.Errorf("media left behind: %d", len(media))
	}
	if p, _ := GetPastProject(ctx, database, fresh.ID); p == nil {
		t.Error("fresh draft was deleted")
	}
}

func TestDeleteDraftOnlyDeletesDrafts(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	draft, _ := StartPastProject(ctx, database, nil)
	if _, err := CreateMedia(ctx, database, model.Media{
		OwnerKind: model.MediaOwnerPastProject,
		OwnerRef:  draft.ProjectKey,
		ObjectKey: "past-work/a.jpg",
		Filename:  "a.jpg",
		MIME:      "image/jpeg",
	}); err != nil {
		t.Fatalf("CreateMedia: %v", err)
	}

	done, _ := StartPastProject(ctx, database, nil)
	if _, err := FinalizePastProject(ctx, database, done.ProjectKey, "Villa", "", nil); err != nil {
		t.Fatalf("FinalizePastProject: %v", err)
	}

	files, removed, err := DeleteDraft(ctx, database, done.ID)
	if err != nil || removed || files != nil {
		t.Fatalf("DeleteDraft(finalised) = %v, %v, %v; want nothing removed", files, removed, err)
	}
	if p, _ := GetPastProject(ctx, database, done.ID); p == nil {
		t.Fatal("finalised project was deleted")
	}

	files, removed, err = DeleteDraft(ctx, database, draft.ID)
	if err != nil || !removed {
		t.Fatalf("DeleteDraft(draft) = %v, %v", removed, err)
	}
	if len(files) != 1 || files[0].ObjectKey != "past-work/a.jpg" {
		t.Errorf("returned media = %+v", files)
	}
	if left, _ := ListMedia(ctx, database, model.MediaOwnerPastProject, draft.ProjectKey); len(left) != 0 {
		t.Errorf("media rows left behind: %d", len(left))
	}

	if _, removed, _ := DeleteDraft(ctx, database, draft.ID); removed {
		t.Error("second DeleteDraft reported a removal")
	}
}
