package services

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"membership_app_echo/internal/models"
)

// InitDB initializes the database connection with connection pooling
func InitDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// Get underlying sql.DB to configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	GetLogger().Info("Database connection established")
	return db, nil
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Transaction{},
		&models.Membership{},
		&models.MembershipGroup{},
		&models.MembershipCourse{},
		&models.MembershipProduct{},
		&models.UserMembership{},
		&models.Course{},
		&models.CourseEnrollment{},
		&models.Product{},
		&models.UserProduct{},
		&models.Group{},
		&models.GroupMember{},
		&models.Wallet{},
		&models.WebhookEvent{},
		&models.ScheduledTask{},
		&models.ScheduledTaskHistory{},
	)
}
