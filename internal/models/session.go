package models

import "time"

// DesignSession describes a live designer session.
type DesignSession struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"productId,omitempty"`
	ProductTitle string    `json:"productTitle"`
	ViewCount    int       `json:"viewCount"`
	Clients      int       `json:"clients"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessed time.Time `json:"lastAccessed"`
}

// SavedDesign is a persisted product layout plus one element snapshot per view.
// Product carries the view configuration; its element lists are empty.
type SavedDesign struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"sessionId"`
	ProductID    string     `json:"productId,omitempty"`
	ProductTitle string     `json:"productTitle"`
	Product      ProductDef `json:"product"`
	Views        [][]byte   `json:"-"`
	Price        float64    `json:"price"`
	Autosave     bool       `json:"autosave,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}
