package models

import "time"

// NotificationKind is the closed set of events the designer emits.
type NotificationKind string

const (
	NotifyElementAdd    NotificationKind = "elementAdd"
	NotifyElementRemove NotificationKind = "elementRemove"
	NotifyElementModify NotificationKind = "elementModify"
	NotifyElementOut    NotificationKind = "elementOut"
	NotifyElementIn     NotificationKind = "elementIn"
	NotifyElementSelect NotificationKind = "elementSelect"
	NotifyElementFail   NotificationKind = "elementFail"
	NotifyHistoryUndo   NotificationKind = "history:undo"
	NotifyHistoryRedo   NotificationKind = "history:redo"
	NotifyHistoryChange NotificationKind = "history:change"
	NotifyHistoryClear  NotificationKind = "history:clear"
	NotifyPriceChange   NotificationKind = "priceChange"
	NotifyProductChange NotificationKind = "productChange"
	NotifyError         NotificationKind = "error"
)

// AllNotificationKinds lists every kind in a stable order.
var AllNotificationKinds = []NotificationKind{
	NotifyElementAdd, NotifyElementRemove, NotifyElementModify,
	NotifyElementOut, NotifyElementIn, NotifyElementSelect, NotifyElementFail,
	NotifyHistoryUndo, NotifyHistoryRedo, NotifyHistoryChange, NotifyHistoryClear,
	NotifyPriceChange, NotifyProductChange, NotifyError,
}

// Notification is a typed event payload.
type Notification struct {
	Kind      NotificationKind `json:"kind" msgpack:"kind"`
	View      int              `json:"view" msgpack:"view"`
	ElementID string           `json:"elementId,omitempty" msgpack:"elementId"`
	Title     string           `json:"title,omitempty" msgpack:"title"`
	Keys      []string         `json:"keys,omitempty" msgpack:"keys"`
	Price     float64          `json:"price,omitempty" msgpack:"price"`
	Message   string           `json:"message,omitempty" msgpack:"message"`
	At        time.Time        `json:"at" msgpack:"at"`
}
