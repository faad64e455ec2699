package notifications

import (
	"squadforge-backend/internal/models"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.User{},
		&models.Team{},
		&models.TeamMember{},
		&models.Announcement{},
	)
	if err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

func TestAnnouncementBoardPost(t *testing.T) {
	db := testDB(t)
	poster := &models.User{GamerTag: "shroud", Email: "shroud@example.com"}
	if err := db.Create(poster).Error; err != nil {
		t.Fatal(err)
	}
	team := &models.Team{Name: "Alpha", GameID: 1, CaptainID: poster.ID, Status: models.TeamStatusActive, MaxMembers: 5}
	if err := db.Create(team).Error; err != nil {
		t.Fatal(err)
	}

	// Nil redis: the entry is stored and the push is skipped without error
	board := NewAnnouncementBoard(db, nil, nil)
	err := board.Post(team.ID, poster.ID, "Scrim tonight", "Be on at 8", models.AnnouncementImportant, true)
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}

	stored, err := models.AnnouncementsForTeam(db, team.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 {
		t.Fatalf("announcements = %d, want 1", len(stored))
	}
	if stored[0].Title != "Scrim tonight" || !stored[0].Pinned || stored[0].Priority != models.AnnouncementImportant {
		t.Errorf("stored = %+v", stored[0])
	}
}
