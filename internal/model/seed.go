package model

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"studio/internal/config"
	"studio/internal/entity"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// operatorNamespace 由邮箱派生运维账号 ID，重启后得到同一个账号
var operatorNamespace = uuid.MustParse("1f0c6b2e-8a47-4c1d-9f6e-3b5d2a7c8e90")

// SeedOperator 确保配置的运维账号存在。未配置邮箱时返回 nil。
func SeedOperator(ctx context.Context, users UserStore, cfg config.Config) (*entity.DbUser, error) {
	email := strings.ToLower(strings.TrimSpace(cfg.SeedOperatorEmail))
	if users == nil || email == "" {
		return nil, nil
	}

	role := strings.ToLower(strings.TrimSpace(cfg.SeedOperatorRole))
	switch role {
	case "":
		role = entity.UserRoleAdmin
	case entity.UserRoleAdmin, entity.UserRoleSuperAdmin, entity.UserRoleManager:
	default:
		return nil, fmt.Errorf("seed operator role %q cannot trigger syncs", role)
	}

	id := strings.TrimSpace(cfg.SeedOperatorID)
	if id == "" {
		id = uuid.NewSHA1(operatorNamespace, []byte(email)).String()
	}

	existing, err := users.GetUserByID(ctx, id)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, entity.ErrNotFound):
		return nil, err
	}

	user := &entity.DbUser{
		ID:          id,
		Email:       email,
		DisplayName: "operator",
		Role:        role,
		IsActive:    true,
	}
	if err := users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create seed operator: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"user_id": user.ID,
		"role":    user.Role,
	}).Info("seed_operator_created")
	return user, nil
}
