package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestLinkJSONShape(t *testing.T) {
	link := Link{
		ID:           "l1",
		URL:          "https://go.dev",
		Title:        "Go",
		CollectionID: InboxID,
		CreatedAt:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	raw, err := json.Marshal(link)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, field := range []string{"id", "url", "title", "collectionId", "createdAt"} {
		if _, ok := m[field]; !ok {
			t.Fatalf("field %q missing from %s", field, raw)
		}
	}
	if _, ok := m["favicon"]; ok {
		t.Fatalf("empty favicon serialized: %s", raw)
	}
}

func TestCollectionOptionalFieldsOmitted(t *testing.T) {
	raw, err := json.Marshal(Collection{ID: InboxID, Name: InboxName, IsDefault: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	for _, absent := range []string{"color", "workspaceId", "createdAt"} {
		if _, ok := m[absent]; ok {
			t.Fatalf("field %q serialized when empty: %s", absent, raw)
		}
	}
	if m["order"] != float64(0) {
		t.Fatalf("order must always serialize: %s", raw)
	}
}

func TestMutationResultHelpers(t *testing.T) {
	ok := OK()
	if !ok.Success || ok.Error != "" || ok.Err() != nil {
		t.Fatalf("ok = %+v", ok)
	}
	failed := Failed("bad %s", "input")
	if failed.Success || failed.Error != "bad input" {
		t.Fatalf("failed = %+v", failed)
	}
	if failed.Err() == nil || failed.Err().Error() != "bad input" {
		t.Fatalf("err = %v", failed.Err())
	}
	wrapped := FailedErr(&NotFoundError{Entity: EntityLink, ID: "l1"})
	if wrapped.Error != "link l1 not found" {
		t.Fatalf("wrapped = %+v", wrapped)
	}
}

func TestErrorStrings(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&ValidationError{Reason: ReasonDuplicate, Message: "name taken"}, "DUPLICATE: name taken"},
		{&NotFoundError{Entity: EntityWorkspace, ID: "w1"}, "workspace w1 not found"},
		{&ProtectedEntityError{Entity: EntityCollection, ID: InboxID, Op: "delete"}, "cannot delete protected collection inbox"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Fatalf("got %q, want %q", got, tc.want)
		}
	}
}

func TestPersistenceErrorUnwraps(t *testing.T) {
	inner := &NotFoundError{Entity: EntityLink, ID: "x"}
	err := &PersistenceError{Op: "write", Key: KeyLinks, Err: inner}
	var target *NotFoundError
	if !errors.As(err, &target) {
		t.Fatal("unwrap chain broken")
	}
}
