package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"studio/internal/entity"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	currentUserContextKey = "current-user"
	// EventSource 无法设置请求头，SSE 连接改用查询参数携带令牌
	accessTokenQuery = "access_token"
)

// RequestUser 存储请求上下文中的认证用户信息
type RequestUser struct {
	ID          string
	Email       string
	DisplayName string
	Role        string
}

// IsOperator 判断用户能否手动触发任务同步
func (u *RequestUser) IsOperator() bool {
	if u == nil {
		return false
	}
	switch u.Role {
	case entity.UserRoleAdmin, entity.UserRoleSuperAdmin, entity.UserRoleManager:
		return true
	default:
		return false
	}
}

// bearerToken 读取 Authorization 头，缺省时回退到 access_token 查询参数
func bearerToken(c *gin.Context) (string, string) {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader == "" {
		if token := strings.TrimSpace(c.Query(accessTokenQuery)); token != "" {
			return token, ""
		}
		return "", "缺少授权头"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", "无效的授权头格式"
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", "缺少 Bearer Token"
	}
	return token, ""
}

// AuthMiddleware JWT 认证中间件
func (h *HTTPHandler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, problem := bearerToken(c)
		if problem != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{Code: ErrCodeUnauthorized, Message: problem})
			return
		}

		claims, err := h.authManager.ParseToken(tokenString)
		if err != nil {
			logrus.WithError(err).Warn("failed to parse jwt token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{Code: ErrCodeSessionExpired, Message: "Token 无效或已过期"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		user, err := h.users.GetUserByID(ctx, claims.UserID)
		switch {
		case errors.Is(err, entity.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{Code: ErrCodeUserNotFound, Message: "用户不存在"})
			return
		case err != nil:
			logrus.WithError(err).WithField("user_id", claims.UserID).Error("failed to load user")
			c.AbortWithStatusJSON(http.StatusInternalServerError, APIError{Code: ErrCodeInternalError, Message: "验证用户失败"})
			return
		case !user.IsActive:
			c.AbortWithStatusJSON(http.StatusForbidden, APIError{Code: ErrCodeUserDisabled, Message: "账户已被禁用"})
			return
		}

		// 角色以数据库为准，令牌里的角色可能已过期
		c.Set(currentUserContextKey, &RequestUser{
			ID:          user.ID,
			Email:       user.Email,
			DisplayName: user.DisplayName,
			Role:        user.Role,
		})
		c.Next()
	}
}

// RequireOperator 运维权限守卫中间件
func (h *HTTPHandler) RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentUser(c).IsOperator() {
			c.AbortWithStatusJSON(http.StatusForbidden, APIError{Code: ErrCodeForbidden, Message: "需要运维权限"})
			return
		}
		c.Next()
	}
}

// CurrentUser 从上下文获取当前认证用户
func CurrentUser(c *gin.Context) *RequestUser {
	value, exists := c.Get(currentUserContextKey)
	if !exists {
		return nil
	}
	user, _ := value.(*RequestUser)
	return user
}
