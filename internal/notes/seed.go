package notes

import "time"

const seedAuthor = "Demo User"

// SeedNotes returns the example notes shown before anything has been persisted.
func SeedNotes() []Note {
	return []Note{
		{
			ID:        "1",
			Title:     "Welcome to Notes Platform",
			Content:   "This is your first note! You can create, edit, and share your thoughts here. The platform supports rich text formatting and tagging.",
			Author:    seedAuthor,
			CreatedAt: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
			Tags:      []string{"welcome", "getting-started"},
		},
		{
			ID:        "2",
			Title:     "Ideas for Tomorrow",
			Content:   "Here are some ideas I want to explore:\n\n• Learn a new programming language\n• Start a side project\n• Read more books\n• Exercise regularly",
			Author:    seedAuthor,
			CreatedAt: time.Date(2024, 1, 16, 14, 30, 0, 0, time.UTC),
			UpdatedAt: time.Date(2024, 1, 16, 14, 30, 0, 0, time.UTC),
			Tags:      []string{"ideas", "goals", "personal"},
		},
	}
}
