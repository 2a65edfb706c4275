package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/snippime/internal/apperror"
	"github.com/sakif/snippime/internal/auth"
	"github.com/sakif/snippime/internal/languages"
	"github.com/sakif/snippime/internal/model"
	"github.com/sakif/snippime/internal/repository"
)

// Account rules.
const (
	MinPasswordLength     = 6
	MaxDisplayNameLength  = 50
	MaxBioLength          = 500
	MaxPreferredLanguages = 10
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// AuthService handles sign-up, sign-in and profiles.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//
// Every successful sign-in returns an AuthResult; setting the cookie is the
// handler's job.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user record and the issued JWT.
type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// ProfileInput holds the user-editable profile fields.
type ProfileInput struct {
	DisplayName        string
	Bio                string
	PhotoURL           string
	PreferredLanguages []string
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// SignUp creates an email/password account and signs it in. A second
// account for the same email is a conflict.
func (s *AuthService) SignUp(ctx context.Context, email, password, displayName string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	displayName = strings.TrimSpace(displayName)

	if !emailPattern.MatchString(email) {
		return nil, apperror.ValidationFailed("email", "a valid email address is required")
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if utf8.RuneCountInString(displayName) > MaxDisplayNameLength {
		return nil, apperror.ValidationFailed("displayName",
			fmt.Sprintf("display name must be %d characters or less", MaxDisplayNameLength))
	}
	if displayName == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", "password is too long")
	}

	user := &model.User{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user signed up", slog.String("userID", user.ID))
	return s.issue(user)
}

// SignIn checks email/password credentials. Unknown emails and wrong
// passwords produce the same error.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	invalid := apperror.Unauthorized("invalid email or password")

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			s.logger.Debug("sign-in rejected", slog.String("userID", user.ID))
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	s.logger.Info("user signed in", slog.String("userID", user.ID))
	return s.issue(user)
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback: the first login
// creates the account, later ones refresh email and avatar.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	name := gh.Name
	if name == "" {
		name = gh.Login
	}
	user := &model.User{
		GitHubID:    gh.ID,
		Email:       strings.ToLower(gh.Email),
		DisplayName: name,
		PhotoURL:    gh.AvatarURL,
	}
	if err := s.users.UpsertGitHub(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", gh.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", gh.Login),
	)
	return s.issue(user)
}

// LoginOrRegisterGoogle is LoginOrRegisterGitHub for Google accounts.
// Google must have verified the email address.
func (s *AuthService) LoginOrRegisterGoogle(ctx context.Context, g *auth.GoogleUser) (*AuthResult, error) {
	if g == nil {
		return nil, fmt.Errorf("service/auth: Google user must not be nil")
	}
	if !g.EmailVerified {
		return nil, apperror.Unauthorized("Google account email is not verified")
	}

	user := &model.User{
		GoogleID:    g.Sub,
		Email:       strings.ToLower(g.Email),
		DisplayName: g.Name,
		PhotoURL:    g.Picture,
	}
	if err := s.users.UpsertGoogle(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (googleID=%s): %w", g.Sub, err)
	}

	s.logger.Info("user authenticated via Google", slog.String("userID", user.ID))
	return s.issue(user)
}

// Me returns the signed-in user's own record.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, userID)
}

// Profile returns another user's public profile. The email address is
// withheld.
func (s *AuthService) Profile(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Email = ""
	return user, nil
}

// UpdateProfile validates and saves the editable profile fields.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*model.User, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.Bio = strings.TrimSpace(in.Bio)
	in.PhotoURL = strings.TrimSpace(in.PhotoURL)

	if in.DisplayName == "" {
		return nil, apperror.ValidationFailed("displayName", "display name is required")
	}
	if utf8.RuneCountInString(in.DisplayName) > MaxDisplayNameLength {
		return nil, apperror.ValidationFailed("displayName",
			fmt.Sprintf("display name must be %d characters or less", MaxDisplayNameLength))
	}
	if utf8.RuneCountInString(in.Bio) > MaxBioLength {
		return nil, apperror.ValidationFailed("bio",
			fmt.Sprintf("bio must be %d characters or less", MaxBioLength))
	}
	if in.PhotoURL != "" && !isHTTPURL(in.PhotoURL) {
		return nil, apperror.ValidationFailed("photoUrl", "photo URL must be an http(s) URL")
	}

	langs := make([]string, 0, len(in.PreferredLanguages))
	seen := make(map[string]bool, len(in.PreferredLanguages))
	for _, l := range in.PreferredLanguages {
		l = languages.Normalize(l)
		if l == "" || seen[l] {
			continue
		}
		if !languages.Valid(l) {
			return nil, apperror.ValidationFailed("preferredLanguages", fmt.Sprintf("unsupported language %q", l))
		}
		seen[l] = true
		langs = append(langs, l)
	}
	if len(langs) > MaxPreferredLanguages {
		return nil, apperror.ValidationFailed("preferredLanguages",
			fmt.Sprintf("at most %d preferred languages", MaxPreferredLanguages))
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.DisplayName = in.DisplayName
	user.Bio = in.Bio
	user.PhotoURL = in.PhotoURL
	user.PreferredLanguages = langs

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: updating profile %s: %w", userID, err)
	}
	return user, nil
}

// ValidateToken returns the user ID a JWT was issued for.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}

// TokenTTL is how long an issued token stays valid.
func (s *AuthService) TokenTTL() time.Duration {
	return s.tokens.TTL()
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
