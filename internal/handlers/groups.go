package handlers

import (
	"errors"
	"strings"

	"github.com/docvault/backend/internal/middleware"
	"github.com/docvault/backend/internal/models"
	"github.com/docvault/backend/internal/policy"
	"github.com/docvault/backend/pkg/logger"
	"github.com/docvault/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type GroupsHandler struct {
	DB *gorm.DB
}

func NewGroupsHandler(db *gorm.DB) *GroupsHandler {
	return &GroupsHandler{DB: db}
}

var errGroupNotEmpty = errors.New("group not empty")

func (h *GroupsHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	scope := policy.GroupListScope(policy.CallerFrom(currentUser))
	if scope.Denied != "" {
		return utils.Error(c, fiber.StatusForbidden, scope.Denied)
	}
	if scope.Empty {
		return utils.Success(c, fiber.StatusOK, []models.Group{})
	}

	query := h.DB.Model(&models.Group{}).Order("created_at DESC")
	if !scope.All {
		query = query.Where("id = ?", *scope.GroupID)
	}

	var groups []models.Group
	if err := query.Find(&groups).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing groups")
	}

	return utils.Success(c, fiber.StatusOK, groups)
}

// Get returns group metadata plus its member list. Visibility follows the
// strict variant: admin anywhere, group_admin only for their own group,
// plain users never.
func (h *GroupsHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	decision := policy.Authorize(policy.CallerFrom(currentUser), policy.ActionListGroupUsers, policy.Target{
		Group: &policy.GroupTarget{ID: groupID},
	})
	if !decision.Allowed {
		return utils.Error(c, fiber.StatusForbidden, decision.Reason)
	}

	var group models.Group
	if err := h.DB.Preload("Members").First(&group, "id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "group not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading group")
	}

	return utils.Success(c, fiber.StatusOK, group)
}

type createGroupRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func (h *GroupsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	decision := policy.Authorize(policy.CallerFrom(currentUser), policy.ActionCreateGroup, policy.Target{})
	if !decision.Allowed {
		return utils.Error(c, fiber.StatusForbidden, decision.Reason)
	}

	var req createGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}

	var existing int64
	if err := h.DB.Model(&models.Group{}).Where("name = ?", req.Name).Count(&existing).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking group name")
	}
	if existing > 0 {
		return utils.Error(c, fiber.StatusConflict, "group name already exists")
	}

	group := models.Group{
		Name:        req.Name,
		Description: req.Description,
		CreatedByID: currentUser.ID,
	}

	if err := h.DB.Create(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return utils.Error(c, fiber.StatusConflict, "group name already exists")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating group")
	}

	logger.InfoWithUser(currentUser.ID.String(), "group_created", map[string]interface{}{
		"group_id":   group.ID.String(),
		"group_name": group.Name,
	})

	return utils.Success(c, fiber.StatusCreated, group)
}

type updateGroupRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h *GroupsHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	decision := policy.Authorize(policy.CallerFrom(currentUser), policy.ActionUpdateGroup, policy.Target{
		Group: &policy.GroupTarget{ID: groupID},
	})
	if !decision.Allowed {
		return utils.Error(c, fiber.StatusForbidden, decision.Reason)
	}

	var group models.Group
	if err := h.DB.First(&group, "id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "group not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading group")
	}

	var req updateGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return utils.Error(c, fiber.StatusBadRequest, "name cannot be empty")
		}
		if name != group.Name {
			var taken int64
			if err := h.DB.Model(&models.Group{}).Where("name = ? AND id != ?", name, groupID).Count(&taken).Error; err != nil {
				return utils.Error(c, fiber.StatusInternalServerError, "failed checking group name")
			}
			if taken > 0 {
				return utils.Error(c, fiber.StatusConflict, "group name already exists")
			}
		}
		updates["name"] = name
	}
	if req.Description != nil {
		trimmed := strings.TrimSpace(*req.Description)
		if trimmed == "" {
			updates["description"] = nil
		} else {
			updates["description"] = trimmed
		}
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(&models.Group{}).Where("id = ?", groupID).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating group")
	}

	var updated models.Group
	if err := h.DB.First(&updated, "id = ?", groupID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading updated group")
	}

	return utils.Success(c, fiber.StatusOK, updated)
}

// Delete refuses while any user or document still references the group; the
// check and the delete share one transaction so a concurrent join cannot
// slip between them.
func (h *GroupsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	decision := policy.Authorize(policy.CallerFrom(currentUser), policy.ActionDeleteGroup, policy.Target{
		Group: &policy.GroupTarget{ID: groupID},
	})
	if !decision.Allowed {
		return utils.Error(c, fiber.StatusForbidden, decision.Reason)
	}

	var notEmptyReason string
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		var group models.Group
		if err := tx.First(&group, "id = ?", groupID).Error; err != nil {
			return err
		}

		var memberCount int64
		if err := tx.Model(&models.User{}).Where("group_id = ?", groupID).Count(&memberCount).Error; err != nil {
			return err
		}
		if memberCount > 0 {
			notEmptyReason = "cannot delete a group that still has users"
			return errGroupNotEmpty
		}

		var documentCount int64
		if err := tx.Model(&models.Document{}).Where("group_id = ?", groupID).Count(&documentCount).Error; err != nil {
			return err
		}
		if documentCount > 0 {
			notEmptyReason = "cannot delete a group that still has documents"
			return errGroupNotEmpty
		}

		return tx.Delete(&models.Group{}, "id = ?", groupID).Error
	})
	if err != nil {
		if notEmptyReason != "" {
			return utils.Error(c, fiber.StatusConflict, notEmptyReason)
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "group not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting group")
	}

	logger.InfoWithUser(currentUser.ID.String(), "group_deleted", map[string]interface{}{
		"group_id": groupID.String(),
	})

	return utils.Message(c, fiber.StatusOK, "group deleted")
}
