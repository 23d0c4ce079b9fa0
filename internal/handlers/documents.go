package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docvault/backend/internal/middleware"
	"github.com/docvault/backend/internal/models"
	"github.com/docvault/backend/internal/policy"
	"github.com/docvault/backend/internal/services"
	"github.com/docvault/backend/internal/storage"
	"github.com/docvault/backend/pkg/logger"
	"github.com/docvault/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type DocumentsHandler struct {
	DB        *gorm.DB
	Storage   storage.ObjectStore
	Documents *services.DocumentService
}

func NewDocumentsHandler(db *gorm.DB, store storage.ObjectStore, documents *services.DocumentService) *DocumentsHandler {
	return &DocumentsHandler{DB: db, Storage: store, Documents: documents}
}

type documentResponse struct {
	ID           string    `json:"id"`
	FileNumber   string    `json:"fileNumber"`
	OriginalName string    `json:"originalName"`
	Size         int64     `json:"size"`
	Uploader     string    `json:"uploader,omitempty"`
	GroupName    string    `json:"groupName,omitempty"`
	UploadedAt   time.Time `json:"uploadedAt"`
	ViewURL      string    `json:"viewURL"`
	QRCodeURL    string    `json:"qrcodeURL"`
}

func (h *DocumentsHandler) toResponse(doc *models.Document) documentResponse {
	resp := documentResponse{
		ID:           doc.ID.String(),
		FileNumber:   doc.FileNumber,
		OriginalName: doc.OriginalName,
		Size:         doc.Size,
		Uploader:     doc.UploadedBy.Username,
		UploadedAt:   doc.CreatedAt,
		ViewURL:      h.Documents.ViewURL(doc.ID),
		QRCodeURL:    fmt.Sprintf("%s/qrcode", strings.TrimSuffix(h.Documents.ViewURL(doc.ID), "/view")),
	}
	if doc.Group != nil {
		resp.GroupName = doc.Group.Name
	}
	return resp
}

// List applies the caller's visibility scope: admins see everything, grouped
// callers see their group's documents plus their own, ungrouped callers see
// only their own uploads.
func (h *DocumentsHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	scope := policy.DocumentListScope(policy.CallerFrom(currentUser))

	query := h.DB.Model(&models.Document{}).
		Preload("UploadedBy").
		Preload("Group").
		Order("created_at DESC")
	if !scope.All {
		if scope.GroupID != nil {
			query = query.Where("group_id = ? OR uploaded_by_id = ?", *scope.GroupID, scope.UploaderID)
		} else {
			query = query.Where("uploaded_by_id = ?", scope.UploaderID)
		}
	}

	var docs []models.Document
	if err := query.Find(&docs).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing documents")
	}

	responses := make([]documentResponse, 0, len(docs))
	for i := range docs {
		responses = append(responses, h.toResponse(&docs[i]))
	}

	return utils.Success(c, fiber.StatusOK, responses)
}

func (h *DocumentsHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	docID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid document id")
	}

	var doc models.Document
	if err := h.DB.Preload("UploadedBy").Preload("Group").First(&doc, "id = ?", docID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "document not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading document")
	}

	decision := policy.Authorize(policy.CallerFrom(currentUser), policy.ActionViewDocument, policy.Target{
		Document: &policy.DocumentTarget{GroupID: doc.GroupID, UploadedByID: doc.UploadedByID},
	})
	if !decision.Allowed {
		return utils.Error(c, fiber.StatusForbidden, decision.Reason)
	}

	return utils.Success(c, fiber.StatusOK, h.toResponse(&doc))
}

func (h *DocumentsHandler) Upload(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	decision := policy.Authorize(policy.CallerFrom(currentUser), policy.ActionUploadDocument, policy.Target{})
	if !decision.Allowed {
		return utils.Error(c, fiber.StatusForbidden, decision.Reason)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}
	fileNumber := strings.TrimSpace(c.FormValue("file_number"))
	if fileNumber == "" {
		return utils.Error(c, fiber.StatusBadRequest, "file number is required")
	}

	stream, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed opening uploaded file")
	}
	defer stream.Close()

	content, err := io.ReadAll(stream)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed reading uploaded file")
	}

	doc, err := h.Documents.Upload(c.Context(), currentUser, fileNumber, fileHeader.Filename, content)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidFileNumber), errors.Is(err, services.ErrUnsupportedFileType):
			return utils.Error(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrFileNumberTaken):
			return utils.Error(c, fiber.StatusConflict, err.Error())
		default:
			return utils.Error(c, fiber.StatusInternalServerError, "failed uploading document")
		}
	}

	doc.UploadedBy = *currentUser
	if currentUser.GroupID != nil {
		var group models.Group
		if err := h.DB.First(&group, "id = ?", *currentUser.GroupID).Error; err == nil {
			doc.Group = &group
		}
	}

	return utils.Success(c, fiber.StatusCreated, h.toResponse(doc))
}

func (h *DocumentsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	docID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid document id")
	}

	var doc models.Document
	if err := h.DB.First(&doc, "id = ?", docID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "document not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading document")
	}

	decision := policy.Authorize(policy.CallerFrom(currentUser), policy.ActionDeleteDocument, policy.Target{
		Document: &policy.DocumentTarget{GroupID: doc.GroupID, UploadedByID: doc.UploadedByID},
	})
	if !decision.Allowed {
		return utils.Error(c, fiber.StatusForbidden, decision.Reason)
	}

	if err := h.Documents.Delete(c.Context(), &doc); err != nil {
		if errors.Is(err, services.ErrDocumentNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "document not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting document")
	}

	logger.InfoWithUser(currentUser.ID.String(), "document_deleted", map[string]interface{}{
		"document_id": doc.ID.String(),
		"file_number": doc.FileNumber,
	})

	return utils.Message(c, fiber.StatusOK, "document deleted")
}

type resolveRequest struct {
	FileNumber    string `json:"file_number"`
	RetrievalCode string `json:"retrieval_code"`
}

// Resolve is the anonymous retrieval path. Both a wrong file number and a
// wrong code produce the same generic not-found so nothing about existing
// documents leaks.
func (h *DocumentsHandler) Resolve(c *fiber.Ctx) error {
	var req resolveRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.FileNumber == "" || req.RetrievalCode == "" {
		return utils.Error(c, fiber.StatusBadRequest, "file number and retrieval code are required")
	}

	doc, err := h.Documents.Resolve(c.Context(), req.FileNumber, req.RetrievalCode)
	if err != nil {
		if errors.Is(err, services.ErrDocumentNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "invalid file number or retrieval code")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed resolving document")
	}

	return utils.Success(c, fiber.StatusOK, h.Documents.Public(doc))
}

// View streams the stored PDF inline. The route is public: possession of the
// document id (from a QR code or a resolve call) is the capability.
func (h *DocumentsHandler) View(c *fiber.Ctx) error {
	docID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid document id")
	}

	var doc models.Document
	if err := h.DB.First(&doc, "id = ?", docID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "document not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading document")
	}

	object, err := h.Storage.Download(c.Context(), doc.StoragePath)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed reading document")
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", doc.OriginalName))
	return c.SendStream(object)
}

// QRCode serves the stored QR image, regenerating it if the object went
// missing.
func (h *DocumentsHandler) QRCode(c *fiber.Ctx) error {
	docID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid document id")
	}

	var doc models.Document
	if err := h.DB.First(&doc, "id = ?", docID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "document not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading document")
	}

	object, err := h.Storage.Download(c.Context(), doc.QRPath)
	if err != nil {
		image, renderErr := services.RenderQR(h.Documents.ViewURL(doc.ID))
		if renderErr != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed rendering qr code")
		}
		if uploadErr := h.Storage.Upload(c.Context(), doc.QRPath, bytes.NewReader(image), int64(len(image)), "image/png"); uploadErr != nil {
			logger.Error("qr_restore_failed", uploadErr, map[string]interface{}{
				"document_id": doc.ID.String(),
				"object_name": doc.QRPath,
			})
		}
		c.Set(fiber.HeaderContentType, "image/png")
		return c.Send(image)
	}

	c.Set(fiber.HeaderContentType, "image/png")
	return c.SendStream(object)
}
