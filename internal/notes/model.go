package notes

import (
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/session"
)

// Note is one user-authored document. Field names are the persisted layout.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	AuthorID  string    `json:"authorId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Tags      []string  `json:"tags"`
}

// NoteInput carries the caller-supplied fields of a new note.
type NoteInput struct {
	Title   string
	Content string
	Author  string
	Tags    []string
}

// NoteUpdate lists the fields an update may replace. Nil fields keep the stored value.
type NoteUpdate struct {
	Title   *string
	Content *string
	Author  *string
	Tags    *[]string
}

// IsEmpty reports whether the update carries no fields.
func (u NoteUpdate) IsEmpty() bool {
	return u.Title == nil && u.Content == nil && u.Author == nil && u.Tags == nil
}

func (n Note) clone() Note {
	copied := n
	copied.Tags = append(make([]string, 0, len(n.Tags)), n.Tags...)
	return copied
}

// CanEdit reports whether the user owns the note, either by id or by display name.
func CanEdit(user session.User, note Note) bool {
	if note.AuthorID != "" && user.ID == note.AuthorID {
		return true
	}
	return note.Author != "" && user.Name == note.Author
}

// ParseTags splits comma-separated input into trimmed, non-empty tags.
// Order and duplicates are preserved.
func ParseTags(raw string) []string {
	return NormalizeTags(strings.Split(raw, ","))
}

// NormalizeTags trims each tag and drops empty ones.
func NormalizeTags(tags []string) []string {
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		normalized = append(normalized, trimmed)
	}
	return normalized
}
