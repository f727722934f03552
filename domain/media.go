package domain

import "time"

// Media is metadata only; storage and transcoding of the payload live
// outside this system.
type Media struct {
	ID         int64     `json:"id"`
	MessageID  int64     `json:"messageId"`
	URL        string    `json:"url"`
	Type       string    `json:"type"`
	Name       string    `json:"name,omitempty"`
	Size       int64     `json:"size,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
}
