package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"messenger/config"
	"messenger/db"
	"messenger/logger"
	"messenger/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var RedisClient *redis.Client

// InitRedis подключается к redis из AppConfig. Без host кэш профилей выключен
func InitRedis() error {
	if config.AppConfig == nil {
		return fmt.Errorf("AppConfig is not loaded")
	}
	addr := config.AppConfig.RedisAddr()
	if addr == "" {
		logger.Log.Info("redis is not configured, profile cache disabled")
		return nil
	}

	redisConfig := config.AppConfig.Redis
	RedisClient = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})

	// Тест соединения
	if _, err := RedisClient.Ping(context.Background()).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

func CloseRedis() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}

// Profile - данные отправителя для отображения
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	PicturePath string `json:"picture_path,omitempty"`
}

// ProfileDirectory - внешний справочник пользователей
type ProfileDirectory interface {
	Profile(ctx context.Context, userID string) (*Profile, error)
}

// ProfileCache кэширует профили в redis. Нулевой клиент - кэша нет
type ProfileCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProfileCache(client *redis.Client, ttl time.Duration) *ProfileCache {
	return &ProfileCache{client: client, ttl: ttl}
}

func profileKey(userID string) string {
	return "profile:" + userID
}

func (c *ProfileCache) Get(ctx context.Context, userID string) (*Profile, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, profileKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Log.Warn("profile cache read failed", zap.String("user_id", userID), zap.Error(err))
		}
		return nil, false
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false
	}
	return &p, true
}

func (c *ProfileCache) Set(ctx context.Context, p *Profile) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, profileKey(p.ID), data, c.ttl).Err(); err != nil {
		logger.Log.Warn("profile cache write failed", zap.String("user_id", p.ID), zap.Error(err))
	}
}

// UserDirectory читает профили из таблицы users на репликах
type UserDirectory struct {
	db    *gorm.DB
	cache *ProfileCache
}

func NewUserDirectory(orm *gorm.DB, cache *ProfileCache) *UserDirectory {
	return &UserDirectory{db: orm, cache: cache}
}

func (d *UserDirectory) Profile(ctx context.Context, userID string) (*Profile, error) {
	if p, ok := d.cache.Get(ctx, userID); ok {
		return p, nil
	}

	var user models.User
	err := db.Reader(ctx, d.db).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError("user %s not found", userID)
	}
	if err != nil {
		return nil, upstreamError("profile directory is unavailable: %v", err)
	}

	p := &Profile{ID: user.ID, DisplayName: user.DisplayName(), PicturePath: user.PicturePath}
	d.cache.Set(ctx, p)
	return p, nil
}
