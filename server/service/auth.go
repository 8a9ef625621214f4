package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/xerrors"
	"github.com/wealthline/supportchat/internal/model"
	"github.com/wealthline/supportchat/internal/repo"
	"github.com/wealthline/supportchat/internal/token"
	"gorm.io/gorm"
)

// 认证失败的对外错误，错误文案是接入方约定的一部分，不能改
var (
	ErrTokenRequired = xerrors.New("authentication token required")
	ErrAuthFailed    = xerrors.New("authentication failed")
	ErrUserNotFound  = xerrors.New("user not found")
)

// Gate 握手认证：校验凭证、加载身份、推导角色
// 每个入站连接执行一次，之后身份随连接存活，不再复核
type Gate struct {
	users          repo.UserRepo
	tokens         *token.Manager
	supportEmail   string
	supportPattern *regexp.Regexp
	logger         clog.Logger
}

// NewGate 创建认证网关
// supportEmail 是精确匹配的客服邮箱，supportPattern 是可选的管理邮箱正则
func NewGate(users repo.UserRepo, tokens *token.Manager, supportEmail, supportPattern string, logger clog.Logger) (*Gate, error) {
	var re *regexp.Regexp
	if supportPattern != "" {
		var err error
		re, err = regexp.Compile(supportPattern)
		if err != nil {
			return nil, xerrors.Wrapf(err, "invalid support email pattern %q", supportPattern)
		}
	}

	return &Gate{
		users:          users,
		tokens:         tokens,
		supportEmail:   supportEmail,
		supportPattern: re,
		logger:         logger.WithNamespace("auth_gate"),
	}, nil
}

// Authenticate 校验原始凭证并解析身份
// 凭证可带 "Bearer " 前缀，对外只暴露三类固定错误
func (g *Gate) Authenticate(ctx context.Context, rawCredential string) (*model.Identity, error) {
	credential := strings.TrimSpace(rawCredential)
	credential = strings.TrimPrefix(credential, "Bearer ")
	if credential == "" {
		return nil, ErrTokenRequired
	}

	userID, err := g.tokens.Verify(credential)
	if err != nil {
		g.logger.Warn("token verification failed", clog.Error(err))
		return nil, ErrAuthFailed
	}

	user, err := g.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			g.logger.Warn("token subject has no account", clog.Int64("user_id", userID))
			return nil, ErrUserNotFound
		}
		g.logger.Error("failed to load user for authentication",
			clog.Int64("user_id", userID),
			clog.Error(err))
		return nil, ErrAuthFailed
	}

	return &model.Identity{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		Role:        g.RoleFor(user.Email),
	}, nil
}

// RoleFor 按邮箱推导角色：精确命中客服邮箱或匹配管理模式即为 SUPPORT
func (g *Gate) RoleFor(email string) string {
	if g.supportEmail != "" && strings.EqualFold(email, g.supportEmail) {
		return model.RoleSupport
	}
	if g.supportPattern != nil && g.supportPattern.MatchString(email) {
		return model.RoleSupport
	}
	return model.RoleUser
}
