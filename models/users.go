package models

import (
	"strings"
	"time"
)

// User - запись справочника пользователей. Сервис сообщений только читает её
// (имя и аватар для отображения отправителя), владеет ей сервис профилей.
type User struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Nickname    string    `gorm:"size:60;uniqueIndex" json:"nickname"`
	FirstName   string    `gorm:"size:255" json:"first_name"`
	LastName    string    `gorm:"size:255" json:"last_name"`
	PicturePath string    `gorm:"size:1024" json:"picture_path"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// DisplayName возвращает имя для отображения, с запасным вариантом nickname
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Nickname
	}
	return name
}

// Migration - запись о применённой миграции схемы
type Migration struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"size:60;uniqueIndex" json:"name"`
	AppliedAt time.Time `gorm:"autoCreateTime" json:"applied_at"`
}
