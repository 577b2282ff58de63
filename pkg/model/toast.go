package model

import "time"

// ToastType classifies a notification.
type ToastType string

const (
	ToastSuccess  ToastType = "success"
	ToastError    ToastType = "error"
	ToastWarning  ToastType = "warning"
	ToastInfo     ToastType = "info"
	ToastFavorite ToastType = "favorite"
)

// Toast is a transient user-facing notification.
type Toast struct {
	ID        string        `json:"id"`
	Message   string        `json:"message"`
	Type      ToastType     `json:"type"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"createdAt"`
}
