package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Field names understood by the content store.
const (
	FieldID        = "_id"
	FieldSlug      = "slug"
	FieldTitle     = "title"
	FieldBody      = "body"
	FieldTags      = "tags"
	FieldAuthor    = "author"
	FieldCreatedAt = "_sys.createdAt"
)

// Sys holds store-managed metadata of a record.
type Sys struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Ref is a reference to another record. Depending on the query depth the
// store returns either the bare id or the inlined record.
type Ref struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
	Slug string `json:"slug,omitempty"`
}

// UnmarshalJSON accepts a bare id string or an inlined tag/author object.
func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Ref{}
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("decoding reference id: %w", err)
		}
		*r = Ref{ID: id}
		return nil
	}

	var obj struct {
		ID       string `json:"_id"`
		Name     string `json:"name"`
		FullName string `json:"fullName"`
		Slug     string `json:"slug"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decoding reference: %w", err)
	}
	name := obj.Name
	if name == "" {
		name = obj.FullName
	}
	*r = Ref{ID: obj.ID, Name: name, Slug: obj.Slug}
	return nil
}

// Article is a single blog post. It is treated as immutable once fetched.
type Article struct {
	ID     string `json:"_id"`
	Sys    Sys    `json:"_sys"`
	Slug   string `json:"slug"`
	Title  string `json:"title,omitempty"`
	Body   string `json:"body,omitempty"`
	Tags   []Ref  `json:"tags,omitempty"`
	Author *Ref   `json:"author,omitempty"`
}

// CreatedAt returns the store creation timestamp.
func (a Article) CreatedAt() time.Time {
	return a.Sys.CreatedAt
}

// Tag is a taxonomy entry. Total is derived, not stored.
type Tag struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Total int    `json:"total"`
}

// Author is a taxonomy entry for writers. Total is derived, not stored.
type Author struct {
	ID        string `json:"_id"`
	FullName  string `json:"fullName"`
	Slug      string `json:"slug"`
	Biography string `json:"biography,omitempty"`
	Total     int    `json:"total"`
}

// ArchiveBucket counts the articles created in one calendar year.
type ArchiveBucket struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

// Image is a media reference.
type Image struct {
	Src string `json:"src"`
}

// App describes the store application that hosts the blog models.
type App struct {
	ID          string `json:"_id"`
	UID         string `json:"uid"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Cover       *Image `json:"cover,omitempty"`
}
