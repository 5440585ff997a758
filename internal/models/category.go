package models

import "strings"

type Category string

const (
	CategoryEGames       Category = "E-Games"
	CategoryGeeks        Category = "Geeks"
	CategoryGeneralGames Category = "General Games"
	CategoryDefault      Category = ""
)

type CategoryStyle struct {
	Background string `json:"background"`
	Text       string `json:"text"`
	Border     string `json:"border"`
}

var categoryStyles = map[Category]CategoryStyle{
	CategoryEGames: {
		Background: "bg-primary/10",
		Text:       "text-primary",
		Border:     "border-primary/30",
	},
	CategoryGeeks: {
		Background: "bg-purple-500/10",
		Text:       "text-purple-400",
		Border:     "border-purple-500/30",
	},
	CategoryGeneralGames: {
		Background: "bg-orange-500/10",
		Text:       "text-orange-400",
		Border:     "border-orange-500/30",
	},
	CategoryDefault: {
		Background: "bg-zinc-800",
		Text:       "text-zinc-400",
		Border:     "border-zinc-700",
	},
}

// ParseCategory maps a backend label onto the closed set. Matching ignores
// case and treats spaces and dashes alike; anything else is CategoryDefault.
func ParseCategory(label string) Category {
	key := normalizeCategory(label)
	for _, c := range []Category{CategoryEGames, CategoryGeeks, CategoryGeneralGames} {
		if normalizeCategory(string(c)) == key {
			return c
		}
	}
	return CategoryDefault
}

func normalizeCategory(label string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(label)), " ", "-")
}

func (c Category) Style() CategoryStyle {
	if style, ok := categoryStyles[c]; ok {
		return style
	}
	return categoryStyles[CategoryDefault]
}

// StyleFor is ParseCategory(label).Style().
func StyleFor(label string) CategoryStyle {
	return ParseCategory(label).Style()
}

type CategoryFilter struct {
	ID    Category `json:"id"`
	Label string   `json:"label"`
}

// Categories lists the filter options. The empty ID selects all events.
func Categories() []CategoryFilter {
	return []CategoryFilter{
		{ID: CategoryDefault, Label: "All Events"},
		{ID: CategoryEGames, Label: string(CategoryEGames)},
		{ID: CategoryGeeks, Label: string(CategoryGeeks)},
		{ID: CategoryGeneralGames, Label: string(CategoryGeneralGames)},
	}
}
