package content

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRefDecoding(t *testing.T) {
	var a Article
	data := `{
		"_id": "a1",
		"_sys": {"createdAt": "2022-03-04T05:06:07.000Z"},
		"slug": "hello",
		"tags": ["t1", {"_id": "t2", "name": "Go", "slug": "go"}],
		"author": {"_id": "u1", "fullName": "Ada Lovelace", "slug": "ada"}
	}`
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(a.Tags) != 2 || a.Tags[0] != (Ref{ID: "t1"}) {
		t.Errorf("expected bare id reference first, got %+v", a.Tags)
	}
	if a.Tags[1].Name != "Go" || a.Tags[1].Slug != "go" {
		t.Errorf("expected inlined tag, got %+v", a.Tags[1])
	}
	if a.Author == nil || a.Author.Name != "Ada Lovelace" {
		t.Errorf("expected author name from fullName, got %+v", a.Author)
	}
	want := time.Date(2022, 3, 4, 5, 6, 7, 0, time.UTC)
	if !a.CreatedAt().Equal(want) {
		t.Errorf("expected %v, got %v", want, a.CreatedAt())
	}
}

func TestRefNull(t *testing.T) {
	var a Article
	if err := json.Unmarshal([]byte(`{"_id":"a1","author":null}`), &a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Author != nil {
		t.Errorf("expected nil author, got %+v", a.Author)
	}
}

func TestRefInvalid(t *testing.T) {
	var r Ref
	if err := json.Unmarshal([]byte(`42`), &r); err == nil {
		t.Error("expected error for numeric reference")
	}
}

func TestSysOmitsZeroUpdatedAt(t *testing.T) {
	a := Article{ID: "a1", Sys: Sys{CreatedAt: time.Date(2022, 3, 4, 0, 0, 0, 0, time.UTC)}}
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(string(data), "updatedAt") {
		t.Errorf("expected zero updatedAt to be omitted, got %s", data)
	}

	a.Sys.UpdatedAt = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	if data, _ = json.Marshal(a); !strings.Contains(string(data), `"updatedAt":"2023-01-02T00:00:00Z"`) {
		t.Errorf("expected updatedAt in %s", data)
	}
}
