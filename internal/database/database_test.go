package database

import (
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/docvault/backend/internal/models"
	"github.com/docvault/backend/pkg/utils"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var dbSetupOnce sync.Once

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dbSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func TestMigrateSeedsBootstrapAdmin(t *testing.T) {
	db := openTestDB(t)

	if err := Migrate(db, "seed-password"); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	var admin models.User
	if err := db.First(&admin, "bootstrap = ?", true).Error; err != nil {
		t.Fatalf("expected a bootstrap administrator: %v", err)
	}
	if admin.Username != "admin" {
		t.Fatalf("expected username admin, got %q", admin.Username)
	}
	if admin.Role != models.UserRoleAdmin {
		t.Fatalf("expected admin role, got %q", admin.Role)
	}
	if admin.GroupID != nil {
		t.Fatal("bootstrap administrator must be ungrouped")
	}
	if !utils.CheckPassword("seed-password", admin.PasswordHash) {
		t.Fatal("expected the seed password to verify")
	}

	t.Run("second migrate does not reseed", func(t *testing.T) {
		if err := Migrate(db, "other-password"); err != nil {
			t.Fatalf("migrate failed: %v", err)
		}
		var count int64
		if err := db.Model(&models.User{}).Where("bootstrap = ?", true).Count(&count).Error; err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected one bootstrap row, got %d", count)
		}
		if !utils.CheckPassword("seed-password", admin.PasswordHash) {
			t.Fatal("reseeding must not rotate the password")
		}
	})
}

func TestDocumentUniquenessIndexes(t *testing.T) {
	db := openTestDB(t)
	if err := Migrate(db, ""); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	group := models.Group{Name: "Records", CreatedByID: uuid.New()}
	if err := db.Create(&group).Error; err != nil {
		t.Fatalf("failed creating group: %v", err)
	}
	groupID := group.ID

	uploaderA := uuid.New()
	uploaderB := uuid.New()

	insert := func(fileNumber string, gid *uuid.UUID, uploader uuid.UUID) error {
		return db.Create(&models.Document{
			FileNumber:    fileNumber,
			OriginalName:  "x.pdf",
			StoredName:    "x.pdf",
			RetrievalCode: "0000",
			StoragePath:   "documents/" + uuid.NewString(),
			QRPath:        "qrcodes/" + uuid.NewString(),
			GroupID:       gid,
			UploadedByID:  uploader,
		}).Error
	}

	if err := insert("CASE-1", &groupID, uploaderA); err != nil {
		t.Fatalf("first grouped insert failed: %v", err)
	}

	t.Run("duplicate within group rejected by the index", func(t *testing.T) {
		err := insert("CASE-1", &groupID, uploaderB)
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			t.Fatalf("expected gorm.ErrDuplicatedKey, got %v", err)
		}
	})

	t.Run("ungrouped rows reuse the grouped file number", func(t *testing.T) {
		if err := insert("CASE-1", nil, uploaderA); err != nil {
			t.Fatalf("expected cross-scope insert to succeed, got %v", err)
		}
		if err := insert("CASE-1", nil, uploaderB); err != nil {
			t.Fatalf("expected per-uploader insert to succeed, got %v", err)
		}
	})

	t.Run("duplicate ungrouped row for one uploader rejected", func(t *testing.T) {
		err := insert("CASE-1", nil, uploaderA)
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			t.Fatalf("expected gorm.ErrDuplicatedKey, got %v", err)
		}
	})
}
