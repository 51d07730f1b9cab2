package services

import (
	"context"
	"fmt"
	"time"

	"messenger/db"
	"messenger/models"

	"gorm.io/gorm"
)

// ContactSource отдаёт список контактов пользователя (подтверждённые друзья)
type ContactSource interface {
	Contacts(ctx context.Context, userID string) ([]string, error)
}

// FriendService читает граф друзей. Его ведёт социальный сервис, здесь
// запись нужна для заполнения окружения разработки
type FriendService struct {
	db *gorm.DB
}

func NewFriendService(orm *gorm.DB) *FriendService {
	return &FriendService{db: orm}
}

// AddFriend добавляет запрос на дружбу
func (fs *FriendService) AddFriend(ctx context.Context, userID, friendID string) error {
	if userID == friendID {
		return validationError("cannot add yourself as friend")
	}

	// Проверяем, что дружба не существует
	var existing int64
	err := db.Writer(ctx, fs.db).Model(&models.Friend{}).Where(
		"((user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?))",
		userID, friendID, friendID, userID,
	).Count(&existing).Error
	if err != nil {
		return fmt.Errorf("error checking friendship: %w", err)
	}
	if existing > 0 {
		return validationError("friendship already exists or is pending")
	}

	friendship := &models.Friend{
		UserID:    userID,
		FriendID:  friendID,
		Status:    models.FriendStatusPending,
		CreatedAt: utcNow(),
	}
	if err := db.Writer(ctx, fs.db).Create(friendship).Error; err != nil {
		return fmt.Errorf("failed to create friend request: %w", err)
	}
	return nil
}

// ApproveFriend подтверждает входящую заявку от requesterID
func (fs *FriendService) ApproveFriend(ctx context.Context, userID, requesterID string) error {
	now := time.Now().UTC()
	res := db.Writer(ctx, fs.db).Model(&models.Friend{}).
		Where("user_id = ? AND friend_id = ? AND status = ?", requesterID, userID, models.FriendStatusPending).
		Updates(map[string]any{"status": models.FriendStatusApproved, "approved_at": now})
	if res.Error != nil {
		return fmt.Errorf("failed to approve friendship: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFoundError("friend request not found")
	}
	return nil
}

// Contacts возвращает id подтверждённых друзей пользователя
func (fs *FriendService) Contacts(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := db.Reader(ctx, fs.db).Model(&models.Friend{}).
		Select("CASE WHEN user_id = ? THEN friend_id ELSE user_id END AS contact_id", userID).
		Where("(user_id = ? OR friend_id = ?) AND status = ?", userID, userID, models.FriendStatusApproved).
		Pluck("contact_id", &ids).Error
	if err != nil {
		return nil, upstreamError("contacts are unavailable: %v", err)
	}
	return ids, nil
}
