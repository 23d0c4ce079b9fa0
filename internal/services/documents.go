package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/docvault/backend/internal/models"
	"github.com/docvault/backend/internal/storage"
	"github.com/docvault/backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrInvalidFileNumber rejects file numbers outside letters, digits and -_+.
	ErrInvalidFileNumber = errors.New("file number can only contain letters, numbers, and -_+ symbols")
	// ErrUnsupportedFileType rejects anything that is not a PDF.
	ErrUnsupportedFileType = errors.New("only PDF files are allowed")
	// ErrFileNumberTaken is the uniqueness-scoping conflict: same file number
	// within the same group, or within the same uploader's ungrouped documents.
	ErrFileNumberTaken = errors.New("file number already exists in your group")
	// ErrDocumentNotFound covers both a missing id and a retrieval mismatch;
	// anonymous callers never learn which half of the pair was wrong.
	ErrDocumentNotFound = errors.New("document not found")
)

var fileNumberPattern = regexp.MustCompile(`^[a-zA-Z0-9\-_+]+$`)

func ValidFileNumber(fileNumber string) bool {
	return fileNumberPattern.MatchString(fileNumber)
}

// DocumentService owns the document store: upload with the uniqueness
// invariant, deletion with blob cleanup, and the anonymous retrieval
// resolver.
type DocumentService struct {
	DB        *gorm.DB
	Storage   storage.ObjectStore
	PublicURL string
}

func NewDocumentService(db *gorm.DB, store storage.ObjectStore, publicURL string) *DocumentService {
	return &DocumentService{DB: db, Storage: store, PublicURL: strings.TrimRight(publicURL, "/")}
}

// Upload stores the payload and QR image, then inserts the metadata row in a
// transaction that re-checks the scoping invariant immediately before the
// insert. The partial unique indexes remain the authoritative guarantee: a
// concurrent uploader losing the race surfaces as gorm.ErrDuplicatedKey and
// is reported as the same conflict. Any failure after a blob write deletes
// the orphaned objects.
func (s *DocumentService) Upload(ctx context.Context, uploader *models.User, fileNumber, originalName string, content []byte) (*models.Document, error) {
	fileNumber = strings.TrimSpace(fileNumber)
	if !ValidFileNumber(fileNumber) {
		return nil, ErrInvalidFileNumber
	}
	originalName = filepath.Base(strings.TrimSpace(originalName))
	if originalName == "" || strings.ToLower(filepath.Ext(originalName)) != ".pdf" {
		return nil, ErrUnsupportedFileType
	}

	code, err := generateRetrievalCode()
	if err != nil {
		return nil, err
	}

	// The id is assigned up front so the QR code can embed the view URL
	// before the row exists.
	docID := uuid.New()
	storedName := fmt.Sprintf("%s_%s", docID.String()[:8], originalName)
	storagePath := fmt.Sprintf("documents/%s/%s", uploader.ID.String(), storedName)
	qrPath := fmt.Sprintf("qrcodes/%s.png", docID.String())

	if err := s.Storage.Upload(ctx, storagePath, bytes.NewReader(content), int64(len(content)), "application/pdf"); err != nil {
		return nil, fmt.Errorf("storing payload: %w", err)
	}

	qrImage, err := RenderQR(s.ViewURL(docID))
	if err != nil {
		_ = s.Storage.Delete(ctx, storagePath)
		return nil, fmt.Errorf("rendering qr code: %w", err)
	}
	if err := s.Storage.Upload(ctx, qrPath, bytes.NewReader(qrImage), int64(len(qrImage)), "image/png"); err != nil {
		_ = s.Storage.Delete(ctx, storagePath)
		return nil, fmt.Errorf("storing qr code: %w", err)
	}

	doc := models.Document{
		BaseModel:     models.BaseModel{ID: docID},
		FileNumber:    fileNumber,
		OriginalName:  originalName,
		StoredName:    storedName,
		RetrievalCode: code,
		StoragePath:   storagePath,
		QRPath:        qrPath,
		Size:          int64(len(content)),
		GroupID:       uploader.GroupID,
		UploadedByID:  uploader.ID,
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&models.Document{}).Where("file_number = ?", fileNumber)
		if uploader.GroupID != nil {
			query = query.Where("group_id = ?", *uploader.GroupID)
		} else {
			query = query.Where("uploaded_by_id = ? AND group_id IS NULL", uploader.ID)
		}

		var count int64
		if err := query.Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrFileNumberTaken
		}

		return tx.Create(&doc).Error
	})
	if err != nil {
		_ = s.Storage.Delete(ctx, storagePath)
		_ = s.Storage.Delete(ctx, qrPath)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrFileNumberTaken
		}
		return nil, err
	}

	logger.InfoWithUser(uploader.ID.String(), "document_uploaded", map[string]interface{}{
		"document_id": doc.ID.String(),
		"file_number": doc.FileNumber,
		"group_id":    doc.GroupID,
		"size":        doc.Size,
	})

	return &doc, nil
}

// Delete removes the metadata row, then the stored payload and QR image.
// Blob deletion failures are logged but do not resurrect the row.
func (s *DocumentService) Delete(ctx context.Context, doc *models.Document) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.Document{}, "id = ?", doc.ID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrDocumentNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.Storage.Delete(ctx, doc.StoragePath); err != nil {
		logger.Error("document_blob_cleanup_failed", err, map[string]interface{}{
			"document_id": doc.ID.String(),
			"object_name": doc.StoragePath,
		})
	}
	if err := s.Storage.Delete(ctx, doc.QRPath); err != nil {
		logger.Error("document_qr_cleanup_failed", err, map[string]interface{}{
			"document_id": doc.ID.String(),
			"object_name": doc.QRPath,
		})
	}

	return nil
}

// Resolve is the anonymous retrieval lookup: exact, case-sensitive match on
// the (file number, retrieval code) pair. The code is meaningless on its
// own; only the pair identifies a document.
func (s *DocumentService) Resolve(ctx context.Context, fileNumber, code string) (*models.Document, error) {
	var doc models.Document
	err := s.DB.WithContext(ctx).
		First(&doc, "file_number = ? AND retrieval_code = ?", fileNumber, code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (s *DocumentService) ViewURL(id uuid.UUID) string {
	return fmt.Sprintf("%s/api/documents/%s/view", s.PublicURL, id.String())
}

func (s *DocumentService) Public(doc *models.Document) models.PublicDocument {
	return models.PublicDocument{
		ID:           doc.ID,
		FileNumber:   doc.FileNumber,
		OriginalName: doc.OriginalName,
		UploadedAt:   doc.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		ViewURL:      s.ViewURL(doc.ID),
	}
}

// generateRetrievalCode draws a 4-digit numeric code. Codes are not unique
// across documents and do not need to be.
func generateRetrievalCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}
