package models

import "time"

const (
	FriendStatusPending  = "pending"
	FriendStatusApproved = "approved"
)

// Friend - модель для хранения дружбы между пользователями
// Status: "pending" (ожидание), "approved" (подтверждена)
// Граф друзей ведёт социальный сервис, здесь он используется как список контактов.
type Friend struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     string     `gorm:"size:64;index" json:"user_id"`
	FriendID   string     `gorm:"size:64;index" json:"friend_id"`
	Status     string     `gorm:"size:16" json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
}
