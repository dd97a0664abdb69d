package refdata

import (
	"context"
	"testing"

	"rollcall/internal/store"
)

func TestReferenceLists(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	_ = mem.Set(ctx, "subjects_list", "subjects_list", store.Document{"subjects_list": []string{"Math", "Physics"}})
	_ = mem.Set(ctx, "classes", "classes_list", store.Document{"classes_list": []any{"A", "B"}})
	_ = mem.Set(ctx, "rooms", "rooms_list", store.Document{"rooms_list": []string{"101", "102"}})

	svc := NewService(mem, nil)

	subjects, err := svc.Subjects(ctx)
	if err != nil || len(subjects) != 2 || subjects[0] != "Math" {
		t.Fatalf("unexpected subjects %v (%v)", subjects, err)
	}
	classes, err := svc.ClassGroups(ctx)
	if err != nil || len(classes) != 2 || classes[1] != "B" {
		t.Fatalf("unexpected classes %v (%v)", classes, err)
	}
	rooms, err := svc.Rooms(ctx)
	if err != nil || len(rooms) != 2 {
		t.Fatalf("unexpected rooms %v (%v)", rooms, err)
	}
}

func TestReferenceListMissingDocument(t *testing.T) {
	svc := NewService(store.NewMemory(), nil)
	if _, err := svc.Subjects(context.Background()); err == nil {
		t.Fatal("expected error for a missing reference document")
	}
}

func TestStringListSkipsNonStrings(t *testing.T) {
	got := stringList([]any{"A", 7, "B", nil})
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("unexpected list %v", got)
	}
}
