package db

import (
	"context"
	"fmt"

	"messenger/config"
	"messenger/logger"
	"messenger/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

var ORM *gorm.DB

func dsnFromConfig(dbConf config.DBConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		dbConf.Host, dbConf.Port, dbConf.User, dbConf.Password, dbConf.DBName,
	)
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
			NoLowerCase:   false,
		},
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}
}

// ConnectDB открывает базу из AppConfig (postgres с репликами или sqlite)
// и применяет миграции
func ConnectDB() (err error) {
	if ORM != nil {
		logger.Log.Info("ORM is already initialized")
		return nil
	}

	conf := config.AppConfig
	if conf == nil {
		return fmt.Errorf("AppConfig is not loaded")
	}

	var db *gorm.DB
	switch conf.Databases.Driver {
	case "sqlite":
		db, err = OpenSQLite(conf.Databases.SQLitePath)
	default:
		db, err = openPostgres(conf)
	}
	if err != nil {
		return err
	}

	if err = Migrate(db); err != nil {
		return err
	}

	ORM = db
	return nil
}

func openPostgres(conf *config.ConfigSchema) (*gorm.DB, error) {
	if conf.Databases.Master.Host == "" {
		return nil, fmt.Errorf("master database configuration is missing")
	}

	// Init replicas
	replicaDSNs := make([]gorm.Dialector, 0, len(conf.Databases.Replicas))
	for _, r := range conf.Databases.Replicas {
		replicaDSNs = append(replicaDSNs, postgres.Open(dsnFromConfig(r)))
	}

	db, err := gorm.Open(postgres.Open(dsnFromConfig(conf.Databases.Master)), gormConfig())
	if err != nil {
		return nil, err
	}

	if len(replicaDSNs) > 0 {
		err = db.Use(dbresolver.Register(dbresolver.Config{
			Replicas: replicaDSNs,
			Policy:   dbresolver.RandomPolicy{},
		}))
		if err != nil {
			return nil, err
		}
	}

	logger.Log.Info("connected to postgres",
		zap.String("host", conf.Databases.Master.Host),
		zap.Int("replicas", len(replicaDSNs)))
	return db, nil
}

// OpenSQLite открывает sqlite-файл. Одно соединение: sqlite не любит
// конкурентных писателей, а так запросы просто встают в очередь
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	logger.Log.Info("connected to sqlite", zap.String("path", path))
	return db, nil
}

// Migrate создаёт таблицы и применяет именованные миграции
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(&models.Migration{}, &models.User{}, &models.Friend{}, &models.Message{}, &models.Reaction{})
	if err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return ApplyMigrations(db)
}

// Reader возвращает подключение для чтения (реплики). Только для справочников:
// состояние сообщений всегда читается с мастера, чтобы не отставать от записи
func Reader(ctx context.Context, orm *gorm.DB) *gorm.DB {
	return orm.WithContext(ctx).Clauses(dbresolver.Read)
}

// Writer возвращает подключение к мастеру
func Writer(ctx context.Context, orm *gorm.DB) *gorm.DB {
	return orm.WithContext(ctx).Clauses(dbresolver.Write)
}

func Close() error {
	if ORM == nil {
		return nil
	}
	sqlDB, err := ORM.DB()
	if err != nil {
		return err
	}
	ORM = nil
	return sqlDB.Close()
}
