// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data. Go favours composition over
// inheritance, so a Dream simply holds its Tags and Insight as fields.
package model

import "time"

// Mood is how the dreamer felt on waking.
type Mood string

const (
	MoodHappy   Mood = "Happy"
	MoodAnxious Mood = "Anxious"
	MoodCalm    Mood = "Calm"
	MoodNeutral Mood = "Neutral"
	MoodExcited Mood = "Excited"
)

// Valid reports whether m is one of the known moods.
func (m Mood) Valid() bool {
	switch m {
	case MoodHappy, MoodAnxious, MoodCalm, MoodNeutral, MoodExcited:
		return true
	}
	return false
}

// Input limits for dream entries.
const (
	MaxDescriptionLength = 5000
	MaxTitleLength       = 255
	MaxTagsPerDream      = 10
	MaxTagLength         = 50
)

// DreamDateLayout is the calendar-date format used for DreamDate.
const DreamDateLayout = "2006-01-02"

// Dream is a single journal entry, owned by exactly one account.
//
// Tags and Insight are read-side fields: the repository does not write them
// with the dream row, the service layer fills them in when listing.
type Dream struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description"`
	DreamDate   string    `json:"dreamDate"`
	Mood        Mood      `json:"moodUponWaking"`
	IsLucid     bool      `json:"isLucid"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Tags    []Tag    `json:"tags"`
	Insight *Insight `json:"insight,omitempty"`
}

// TagNames returns the names of the dream's tags in order.
func (d *Dream) TagNames() []string {
	names := make([]string, 0, len(d.Tags))
	for _, t := range d.Tags {
		names = append(names, t.Name)
	}
	return names
}

// Tag is a globally shared label, deduplicated by name and created lazily the
// first time any dream uses it.
type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
