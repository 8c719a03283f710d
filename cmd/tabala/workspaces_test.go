package main

import (
	"context"
	"strings"
	"testing"

	"tabala/internal/infra/storage/memory"
	"tabala/internal/store"
	"tabala/pkg/domain"
)

func newCLIStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(memory.NewStore())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return s
}

func TestWorkspacesUpdateCommand(t *testing.T) {
	s := newCLIStore(t)
	ctx := context.Background()

	ws, err := s.AddWorkspace(ctx, domain.NewWorkspace{Name: "Work", Color: "#112233"})
	if err != nil {
		t.Fatalf("add workspace: %v", err)
	}

	args := []string{"update", "-name", "Deep Work", "-color", "#445566", ws.ID}
	if err := runWorkspaces(ctx, s, args); err != nil {
		t.Fatalf("update: %v", err)
	}

	for _, got := range s.Snapshot().Workspaces {
		if got.ID != ws.ID {
			continue
		}
		if got.Name != "Deep Work" || got.Color != "#445566" {
			t.Fatalf("workspace = %+v", got)
		}
		return
	}
	t.Fatal("workspace missing from snapshot")
}

func TestWorkspacesUpdateOmittedFlagsLeaveFieldsAlone(t *testing.T) {
	s := newCLIStore(t)
	ctx := context.Background()

	ws, err := s.AddWorkspace(ctx, domain.NewWorkspace{Name: "Work", Color: "#112233", Description: "focus"})
	if err != nil {
		t.Fatalf("add workspace: %v", err)
	}

	if err := runWorkspaces(ctx, s, []string{"update", "-color", "#ffffff", ws.ID}); err != nil {
		t.Fatalf("update: %v", err)
	}

	for _, got := range s.Snapshot().Workspaces {
		if got.ID != ws.ID {
			continue
		}
		if got.Name != "Work" || got.Description != "focus" || got.Color != "#ffffff" {
			t.Fatalf("workspace = %+v", got)
		}
		return
	}
	t.Fatal("workspace missing from snapshot")
}

func TestWorkspacesUpdateRejectsDefaultRename(t *testing.T) {
	s := newCLIStore(t)
	ctx := context.Background()

	err := runWorkspaces(ctx, s, []string{"update", "-name", "Renamed", domain.DefaultWorkspaceID})
	if err == nil {
		t.Fatal("expected failure renaming the default workspace")
	}
	if !strings.Contains(err.Error(), "protected") {
		t.Fatalf("error = %q", err)
	}
}
