package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/hanasu/internal/model"
	"github.com/hitoshi/hanasu/internal/repository"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）。デフォルトは1週間
}

// SignupInput はローカルサインアップの入力。
type SignupInput struct {
	Email     string         `json:"email"`
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastName"`
	UserType  model.UserType `json:"userType"`
	Language  string         `json:"language"`
}

// Service は認証に関するビジネスロジックを提供する。
// ローカル（開発）ログインとOIDCコールバックの両方を扱う。
type Service struct {
	oidc        *OIDCProvider // 本番モードのみ。開発モードではnil
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
}

// NewService はServiceを生成する。
// oidcは開発モードではnilを許容する。
func NewService(
	oidc *OIDCProvider,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	if config.SessionMaxAge <= 0 {
		config.SessionMaxAge = 604800 // 1週間
	}
	return &Service{
		oidc:        oidc,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// Login はローカル（モック）ログインを処理する。
// メールアドレスで既存ユーザーを特定し、セッションを発行する。
// ユーザーが存在しない場合はInvalidCredentialsエラーを返す。
func (s *Service) Login(ctx context.Context, email string) (*model.User, *model.Session, error) {
	if email == "" {
		return nil, nil, model.NewValidationError("email")
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, user.ID, nil)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("user_type", string(user.UserType)),
	)
	return user, session, nil
}

// Signup はローカルサインアップを処理する。
// 必須項目を検証し、ユーザーを作成してセッションを発行する。
func (s *Service) Signup(ctx context.Context, input SignupInput) (*model.User, *model.Session, error) {
	if input.Email == "" {
		return nil, nil, model.NewValidationError("email")
	}
	if input.UserType == "" {
		input.UserType = model.UserTypeAdult
	}
	if !input.UserType.IsValid() {
		return nil, nil, model.NewValidationError("userType")
	}
	if input.Language == "" {
		input.Language = "ja"
	}

	existing, err := s.userRepo.FindByEmail(ctx, input.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, nil, model.NewEmailTakenError(input.Email)
	}

	now := time.Now()
	user := &model.User{
		ID:        uuid.New().String(),
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		UserType:  input.UserType,
		Language:  input.Language,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}

	session, err := s.createSession(ctx, user.ID, nil)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("new user signed up",
		slog.String("user_id", user.ID),
		slog.String("user_type", string(user.UserType)),
	)
	return user, session, nil
}

// MockLogin は開発モードのモックログインを処理する。
// signupDataが指定された場合はその内容でユーザーをアップサートし、
// 未指定の場合は固定の開発用ユーザーをアップサートする。
func (s *Service) MockLogin(ctx context.Context, signupData *SignupInput) (*model.User, *model.Session, error) {
	input := SignupInput{
		Email:     "dev@example.com",
		FirstName: "開発",
		LastName:  "ユーザー",
		UserType:  model.UserTypeAdult,
		Language:  "ja",
	}
	if signupData != nil {
		input = *signupData
		if input.UserType == "" || !input.UserType.IsValid() {
			input.UserType = model.UserTypeAdult
		}
		if input.Language == "" {
			input.Language = "ja"
		}
	}

	// 既存ユーザーがいればそのIDを引き継ぐ
	now := time.Now()
	user, err := s.userRepo.FindByEmail(ctx, input.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find mock user: %w", err)
	}
	if user == nil {
		user = &model.User{
			ID:        uuid.New().String(),
			CreatedAt: now,
		}
	}
	user.Email = input.Email
	user.FirstName = input.FirstName
	user.LastName = input.LastName
	user.UserType = input.UserType
	user.Language = input.Language
	user.UpdatedAt = now

	if err := s.userRepo.Upsert(ctx, user); err != nil {
		return nil, nil, fmt.Errorf("failed to upsert mock user: %w", err)
	}

	session, err := s.createSession(ctx, user.ID, nil)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("mock login",
		slog.String("user_id", user.ID),
		slog.String("user_type", string(user.UserType)),
	)
	return user, session, nil
}

// HandleOIDCCallback はOIDCコールバックを処理し、セッションを発行する。
// 認可コードをトークンに交換し、クレームでユーザーをアップサートする。
// セッションにはトークン一式と有効期限を保持する（認証ゲートのリフレッシュ判定用）。
func (s *Service) HandleOIDCCallback(ctx context.Context, code string) (*model.User, *model.Session, error) {
	if s.oidc == nil {
		return nil, nil, fmt.Errorf("oidc provider is not configured")
	}

	result, err := s.oidc.ExchangeCode(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to exchange oidc code: %w", err)
	}

	// subをユーザーIDとしてアップサート（ベアラートークン＝ユーザーIDの方式と整合）
	now := time.Now()
	user, err := s.userRepo.FindByID(ctx, result.Claims.Sub)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find oidc user: %w", err)
	}
	if user == nil {
		user = &model.User{
			ID:        result.Claims.Sub,
			UserType:  model.UserTypeAdult,
			Language:  "ja",
			CreatedAt: now,
		}
	}
	user.Email = result.Email
	user.FirstName = result.FirstName
	user.LastName = result.LastName
	user.UpdatedAt = now

	if err := s.userRepo.Upsert(ctx, user); err != nil {
		return nil, nil, fmt.Errorf("failed to upsert oidc user: %w", err)
	}

	session, err := s.createSession(ctx, user.ID, &result.Tokens)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("oidc user logged in", slog.String("user_id", user.ID))
	return user, session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// createSession はセッションを作成し永続化する。
// tokensが非nilの場合はOIDCトークン一式をセッションに保持する。
func (s *Service) createSession(ctx context.Context, userID string, tokens *TokenSet) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		Claims:    model.SessionClaims{Sub: userID},
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}
	if tokens != nil {
		session.AccessToken = tokens.AccessToken
		session.RefreshToken = tokens.RefreshToken
		session.TokenExpiresAt = tokens.ExpiresAt
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
