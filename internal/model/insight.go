package model

import "time"

// Insight is the generated interpretation attached to a dream.
// There is at most one per dream; it is created once and never updated.
type Insight struct {
	ID           string    `json:"id"`
	DreamID      string    `json:"dreamId"`
	Text         string    `json:"insightText"`
	ModelVersion string    `json:"aiModelVersion"`
	GeneratedAt  time.Time `json:"generatedAt"`
}
