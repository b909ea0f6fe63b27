package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/therapybridge/therapybridge/internal/auth"
	"github.com/therapybridge/therapybridge/internal/models"
	"github.com/therapybridge/therapybridge/internal/validate"
)

type signupRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// tokenResponse is returned by signup, login and refresh.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	Role         string `json:"role"`
}

func (s *Server) issueTokens(c *gin.Context, user *models.User) (*tokenResponse, error) {
	access, err := s.issuer.Issue(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	refresh, err := s.refresh.Issue(user.ID, c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		return nil, err
	}
	return &tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		UserID:       user.ID,
		Role:         user.Role,
	}, nil
}

func (s *Server) handleSignup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "bad_request", "email, password and full_name are required")
		return
	}
	if !validate.Email(req.Email) {
		s.fail(c, http.StatusUnprocessableEntity, "invalid_email", "email address is not valid")
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.fail(c, http.StatusUnprocessableEntity, "invalid_password", err.Error())
		return
	}

	var existing int64
	if err := s.db.Model(&models.User{}).Where("email = ?", req.Email).Count(&existing).Error; err != nil {
		s.failInternal(c, err)
		return
	}
	if existing > 0 {
		s.fail(c, http.StatusConflict, "email_taken", "an account with this email already exists")
		return
	}

	user := models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		FullName:     req.FullName,
		Role:         models.RoleTherapist,
		Active:       true,
	}
	if err := s.db.Create(&user).Error; err != nil {
		s.failInternal(c, err)
		return
	}

	resp, err := s.issueTokens(c, &user)
	if err != nil {
		s.failInternal(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "bad_request", "email and password are required")
		return
	}

	var user models.User
	err := s.db.Where("email = ?", req.Email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !user.Active) {
		s.fail(c, http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect")
		return
	}
	if err != nil {
		s.failInternal(c, err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		s.fail(c, http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect")
		return
	}

	resp, err := s.issueTokens(c, &user)
	if err != nil {
		s.failInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "bad_request", "refresh_token is required")
		return
	}

	fresh, userID, err := s.refresh.Rotate(req.RefreshToken, c.Request.UserAgent(), c.ClientIP())
	if errors.Is(err, auth.ErrRefreshInvalid) {
		s.fail(c, http.StatusUnauthorized, "invalid_refresh", "refresh token is invalid or expired")
		return
	}
	if err != nil {
		s.failInternal(c, err)
		return
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		s.failInternal(c, err)
		return
	}
	access, err := s.issuer.Issue(user.ID, user.Role)
	if err != nil {
		s.failInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  access,
		RefreshToken: fresh,
		UserID:       user.ID,
		Role:         user.Role,
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "bad_request", "refresh_token is required")
		return
	}
	if err := s.refresh.Revoke(req.RefreshToken); err != nil {
		s.failInternal(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
