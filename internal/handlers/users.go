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
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UsersHandler struct {
	DB *gorm.DB
}

func NewUsersHandler(db *gorm.DB) *UsersHandler {
	return &UsersHandler{DB: db}
}

func (h *UsersHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	scope := policy.UserListScope(policy.CallerFrom(currentUser))
	if scope.Empty {
		return utils.Success(c, fiber.StatusOK, []models.User{})
	}

	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.User{}).Preload("Group")
	if !scope.All {
		query = query.Where("group_id = ?", *scope.GroupID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting users")
	}

	var users []models.User
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&users).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing users")
	}

	return utils.Paginated(c, users, p, total)
}

func (h *UsersHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var user models.User
	if err := h.DB.Preload("Group").First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading user")
	}

	decision := policy.CanViewUser(policy.CallerFrom(currentUser), &policy.UserTarget{
		ID:      user.ID,
		GroupID: user.GroupID,
	})
	if !decision.Allowed {
		return utils.Error(c, fiber.StatusForbidden, decision.Reason)
	}

	return utils.Success(c, fiber.StatusOK, user)
}

type createUserRequest struct {
	Username string          `json:"username"`
	Password string          `json:"password"`
	Role     models.UserRole `json:"role"`
	GroupID  *uuid.UUID      `json:"groupID"`
}

func (h *UsersHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createUserRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "username and password are required")
	}
	if req.Role == "" {
		req.Role = models.UserRoleUser
	}
	// The admin role belongs to the seeded bootstrap account alone; accounts
	// created through the API top out at group_admin.
	if req.Role != models.UserRoleGroupAdmin && req.Role != models.UserRoleUser {
		return utils.Error(c, fiber.StatusBadRequest, "invalid role")
	}

	decision := policy.Authorize(policy.CallerFrom(currentUser), policy.ActionCreateUser, policy.Target{
		User: &policy.UserTarget{GroupID: req.GroupID},
	})
	if !decision.Allowed {
		return utils.Error(c, fiber.StatusForbidden, decision.Reason)
	}

	if req.GroupID != nil {
		var group models.Group
		if err := h.DB.First(&group, "id = ?", *req.GroupID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.Error(c, fiber.StatusNotFound, "group not found")
			}
			return utils.Error(c, fiber.StatusInternalServerError, "failed loading group")
		}
	}

	var existing int64
	if err := h.DB.Model(&models.User{}).Where("username = ?", req.Username).Count(&existing).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking username")
	}
	if existing > 0 {
		return utils.Error(c, fiber.StatusConflict, "username already exists")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	user := models.User{
		Username:     req.Username,
		PasswordHash: hash,
		Role:         req.Role,
		GroupID:      req.GroupID,
		CreatedByID:  &currentUser.ID,
	}

	if err := h.DB.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return utils.Error(c, fiber.StatusConflict, "username already exists")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating user")
	}

	logger.InfoWithUser(currentUser.ID.String(), "user_created", map[string]interface{}{
		"user_id":  user.ID.String(),
		"username": user.Username,
		"role":     string(user.Role),
		"group_id": user.GroupID,
	})

	return utils.Success(c, fiber.StatusCreated, user)
}

type updateUserRequest struct {
	Username *string          `json:"username"`
	Password *string          `json:"password"`
	Role     *models.UserRole `json:"role"`
	GroupID  *uuid.UUID       `json:"groupID"`
	// ClearGroup removes the user from their group; a nil GroupID alone
	// cannot distinguish "leave unchanged" from "unset".
	ClearGroup bool `json:"clearGroup"`
}

func (h *UsersHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading user")
	}

	var req updateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	changesGroup := req.ClearGroup || req.GroupID != nil

	decision := policy.Authorize(policy.CallerFrom(currentUser), policy.ActionUpdateUser, policy.Target{
		User: &policy.UserTarget{
			ID:           user.ID,
			GroupID:      user.GroupID,
			Bootstrap:    user.Bootstrap,
			ChangesGroup: changesGroup,
		},
	})
	if !decision.Allowed {
		return utils.Error(c, fiber.StatusForbidden, decision.Reason)
	}

	updates := map[string]interface{}{}
	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		if username == "" {
			return utils.Error(c, fiber.StatusBadRequest, "username cannot be empty")
		}
		if username != user.Username {
			var taken int64
			if err := h.DB.Model(&models.User{}).Where("username = ? AND id != ?", username, userID).Count(&taken).Error; err != nil {
				return utils.Error(c, fiber.StatusInternalServerError, "failed checking username")
			}
			if taken > 0 {
				return utils.Error(c, fiber.StatusConflict, "username already exists")
			}
		}
		updates["username"] = username
	}
	if req.Password != nil {
		if *req.Password == "" {
			return utils.Error(c, fiber.StatusBadRequest, "password cannot be empty")
		}
		hash, err := utils.HashPassword(*req.Password)
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
		}
		updates["password_hash"] = hash
	}
	if req.Role != nil {
		if *req.Role != models.UserRoleGroupAdmin && *req.Role != models.UserRoleUser {
			return utils.Error(c, fiber.StatusBadRequest, "invalid role")
		}
		if currentUser.Role == models.UserRoleUser {
			return utils.Error(c, fiber.StatusForbidden, "you do not have permission to change roles")
		}
		if user.Bootstrap {
			return utils.Error(c, fiber.StatusForbidden, "the bootstrap administrator's role cannot be changed")
		}
		updates["role"] = *req.Role
	}
	if req.ClearGroup {
		updates["group_id"] = nil
	} else if req.GroupID != nil {
		var group models.Group
		if err := h.DB.First(&group, "id = ?", *req.GroupID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.Error(c, fiber.StatusNotFound, "group not found")
			}
			return utils.Error(c, fiber.StatusInternalServerError, "failed loading group")
		}
		updates["group_id"] = *req.GroupID
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return utils.Error(c, fiber.StatusConflict, "username already exists")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating user")
	}

	var updated models.User
	if err := h.DB.Preload("Group").First(&updated, "id = ?", userID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading updated user")
	}

	return utils.Success(c, fiber.StatusOK, updated)
}

func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading user")
	}

	decision := policy.Authorize(policy.CallerFrom(currentUser), policy.ActionDeleteUser, policy.Target{
		User: &policy.UserTarget{
			ID:        user.ID,
			GroupID:   user.GroupID,
			Bootstrap: user.Bootstrap,
		},
	})
	if !decision.Allowed {
		return utils.Error(c, fiber.StatusForbidden, decision.Reason)
	}

	if err := h.DB.Delete(&models.User{}, "id = ?", userID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting user")
	}

	logger.InfoWithUser(currentUser.ID.String(), "user_deleted", map[string]interface{}{
		"user_id":  user.ID.String(),
		"username": user.Username,
	})

	return utils.Message(c, fiber.StatusOK, "user deleted")
}
