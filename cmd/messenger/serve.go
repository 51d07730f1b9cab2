package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"messenger/api/handlers"
	"messenger/api/middleware"
	"messenger/api/routes"
	"messenger/config"
	"messenger/db"
	"messenger/logger"
	"messenger/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serviceName = "messenger"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	conf, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := db.ConnectDB(); err != nil {
		return fmt.Errorf("failed to connect to the database: %w", err)
	}
	defer db.Close()

	// Без redis работаем без кэша профилей
	if err := services.InitRedis(); err != nil {
		logger.Log.Warn("redis unavailable, profile cache disabled", zap.Error(err))
		services.RedisClient = nil
	}
	defer services.CloseRedis()

	var events services.EventPublisher = services.NopPublisher{}
	if conf.RabbitMQ.URL != "" {
		publisher, err := services.NewRabbitPublisher(conf.RabbitMQ.URL, conf.RabbitMQ.Exchange)
		if err != nil {
			logger.Log.Warn("rabbitmq unavailable, events disabled", zap.Error(err))
		} else {
			defer publisher.Close()
			events = publisher
		}
	}

	router := newRouter(conf, events)
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", conf.Backend.Host, conf.Backend.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(conf *config.ConfigSchema, events services.EventPublisher) *gin.Engine {
	if conf.Logs.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	store := services.NewMessageStore(db.ORM, events)
	store.SetPageLimits(conf.Sync.DefaultPageSize, conf.Sync.MaxPageSize)

	profiles := services.NewUserDirectory(db.ORM,
		services.NewProfileCache(services.RedisClient, time.Duration(conf.Redis.ProfileTTLSeconds)*time.Second))
	delivery := services.NewDelivery(store,
		services.NewFriendService(db.ORM),
		profiles,
		services.NewLocalBlobStore(conf.Blob.Dir, conf.Blob.BaseURL))
	delivery.ConversationPoll = time.Duration(conf.Sync.ConversationPollSeconds) * time.Second
	delivery.RecentPoll = time.Duration(conf.Sync.RecentPollSeconds) * time.Second

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.PrometheusMiddleware(serviceName))

	routes.ServiceApi(router, func() error {
		sqlDB, err := db.ORM.DB()
		if err != nil {
			return err
		}
		return sqlDB.Ping()
	})

	// Загруженные файлы отдаём сами, если base_url локальный
	if strings.HasPrefix(conf.Blob.BaseURL, "/") {
		router.Static(conf.Blob.BaseURL, conf.Blob.Dir)
	}

	auth := middleware.AuthMiddleware(services.NewJWTVerifier(conf.Auth.JWTSecret), conf.Auth.AllowHeaderIdentity)
	sendLimit := middleware.RateLimit(conf.RateLimit.SendRPS, conf.RateLimit.SendBurst)
	routes.MessagesApi(router, handlers.NewMessageHandlers(delivery, conf.Blob.MaxUploadMB), auth, sendLimit)

	return router
}
