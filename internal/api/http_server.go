package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"studio/internal/auth"
	"studio/internal/config"
	"studio/internal/model"
	"studio/internal/service"
)

// HTTPHandler HTTP 请求处理器
type HTTPHandler struct {
	cfg         config.Config
	users       model.UserStore
	syncer      service.JobSyncer
	events      *EventHub
	authManager *auth.Manager

	// 回调同步的超时，覆盖下载与落库
	syncTimeout time.Duration
}

// NewHTTPHandler 创建 HTTP 处理器实例
func NewHTTPHandler(cfg config.Config, users model.UserStore, syncer service.JobSyncer, events *EventHub) (*HTTPHandler, error) {
	if syncer == nil {
		return nil, errors.New("api: syncer is required")
	}
	expiry := time.Duration(cfg.JWTExpirationMinutes) * time.Minute
	authManager, err := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, expiry)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = NewEventHub()
	}

	return &HTTPHandler{
		cfg:         cfg,
		users:       users,
		syncer:      syncer,
		events:      events,
		authManager: authManager,
		syncTimeout: 3 * time.Minute,
	}, nil
}

// AuthManager 暴露令牌管理器，用于签发运维令牌
func (h *HTTPHandler) AuthManager() *auth.Manager {
	return h.authManager
}

// syncContext 回调请求断开后仍需完成落库，所以脱离请求的取消信号
func (h *HTTPHandler) syncContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), h.syncTimeout)
}

// normalisePublicBase 规范化公共 URL 基础路径
func normalisePublicBase(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		trimmed = "/files"
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return strings.TrimRight(trimmed, "/")
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return strings.TrimRight(trimmed, "/")
}

// LocalStaticPrefix 本地存储时返回静态文件挂载路径，远程地址返回空
func LocalStaticPrefix(publicBase string) string {
	base := normalisePublicBase(publicBase)
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		return ""
	}
	return base
}
