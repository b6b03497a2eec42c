package database

import (
	"net/url"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/jimdaga/food-journal/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestNormalizeDSN(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"adds timezone", "postgres://u:p@localhost:5432/journal?sslmode=disable", "UTC"},
		{"keeps explicit timezone", "postgres://u:p@localhost:5432/journal?TimeZone=Europe/Berlin", "Europe/Berlin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeDSN(tt.in)
			if err != nil {
				t.Fatalf("normalizeDSN: %v", err)
			}
			u, err := url.Parse(got)
			if err != nil {
				t.Fatalf("result is not a URL: %v", err)
			}
			if tz := u.Query().Get("TimeZone"); tz != tt.want {
				t.Errorf("TimeZone = %q, want %q", tz, tt.want)
			}
		})
	}
}

func TestNormalizeKeyValueDSN(t *testing.T) {
	got, err := normalizeDSN("host=localhost user=journal dbname=journal")
	if err != nil {
		t.Fatalf("normalizeDSN: %v", err)
	}
	if got != "host=localhost user=journal dbname=journal TimeZone=UTC" {
		t.Errorf("got %q", got)
	}

	kept, _ := normalizeDSN("host=localhost TimeZone=Asia/Tokyo")
	if kept != "host=localhost TimeZone=Asia/Tokyo" {
		t.Errorf("explicit time zone rewritten: %q", kept)
	}
}

func TestInitRequiresURL(t *testing.T) {
	if _, err := Init("", DefaultPool); err == nil {
		t.Fatal("expected error for empty database URL")
	}
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func TestSeedDevDataIsIdempotent(t *testing.T) {
	db := openSQLite(t)
	for _, name := range []string{"Grains", "Fruits", "Water"} {
		if err := db.Create(&models.FoodGroup{Name: name}).Error; err != nil {
			t.Fatalf("create group: %v", err)
		}
	}

	if err := SeedDevData(db); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if err := SeedDevData(db); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	var messages, foods, servings int64
	db.Model(&models.Message{}).Count(&messages)
	db.Model(&models.FoodEntry{}).Count(&foods)
	db.Model(&models.Serving{}).Count(&servings)
	if messages != 1 || foods != 2 || servings != 3 {
		t.Errorf("unexpected counts: messages=%d foods=%d servings=%d", messages, foods, servings)
	}

	var msg models.Message
	db.First(&msg)
	if !msg.IsProcessed {
		t.Error("seeded message should be processed")
	}
}
