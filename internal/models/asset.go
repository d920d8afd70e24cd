package models

import "time"

// AssetInfo represents metadata about an uploaded asset.
type AssetInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType,omitempty"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Source returns the element source that resolves to this asset.
func (a *AssetInfo) Source() string {
	return "upload://" + a.ID
}
