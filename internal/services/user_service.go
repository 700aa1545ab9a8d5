package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"fintrack/internal/auth"
	"fintrack/internal/blob"
	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// ProfileUpdate carries a partial profile change. Nil and empty values are ignored.
type ProfileUpdate struct {
	Username *string
	Email    *string
	Password *string
	Picture  []byte
}

// UserService owns signup, login and profile maintenance.
type UserService struct {
	users      UserStore
	tokens     *auth.TokenManager
	pictures   blob.Store
	bcryptCost int
}

func NewUserService(users UserStore, tokens *auth.TokenManager, pictures blob.Store) *UserService {
	return &UserService{users: users, tokens: tokens, pictures: pictures}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// Signup creates an account with a bcrypt-hashed password.
func (s *UserService) Signup(ctx context.Context, username, email, password string) (core.User, error) {
	username = strings.TrimSpace(username)
	email = normalizeEmail(email)
	switch {
	case username == "":
		return core.User{}, &core.FieldError{Field: "username", Err: core.ErrMissingField}
	case email == "":
		return core.User{}, &core.FieldError{Field: "email", Err: core.ErrMissingField}
	case password == "":
		return core.User{}, &core.FieldError{Field: "password", Err: core.ErrMissingField}
	case !validEmail(email):
		return core.User{}, &core.FieldError{Field: "email", Err: errors.New("invalid email address")}
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return core.User{}, err
	}
	u, err := s.users.CreateUser(ctx, core.User{Username: username, Email: email, PasswordHash: hash})
	if errors.Is(err, storage.ErrAlreadyExists) {
		return core.User{}, ErrEmailTaken
	}
	if err != nil {
		return core.User{}, fmt.Errorf("signup: %w", err)
	}
	return u, nil
}

// Login checks credentials and issues a bearer token. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (core.User, string, error) {
	u, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, storage.ErrNotFound) {
		return core.User{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, "", fmt.Errorf("login: %w", err)
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return core.User{}, "", ErrInvalidCredentials
		}
		return core.User{}, "", fmt.Errorf("login: %w", err)
	}

	token := ""
	if s.tokens != nil {
		if token, err = s.tokens.Generate(u); err != nil {
			return core.User{}, "", err
		}
	}
	slog.InfoContext(ctx, "User logged in", "component", "auth", "user_id", u.ID)
	return u, token, nil
}

func (s *UserService) Get(ctx context.Context, id int64) (core.User, error) {
	return s.users.GetUser(ctx, id)
}

// PictureURL resolves the user's picture key, or "" when there is none.
func (s *UserService) PictureURL(ctx context.Context, u core.User) string {
	if u.ProfilePic == "" || s.pictures == nil {
		return ""
	}
	url, err := s.pictures.URL(ctx, u.ProfilePic)
	if err != nil {
		slog.WarnContext(ctx, "Failed to resolve profile picture", "component", "blob", "user_id", u.ID, "error", err)
		return ""
	}
	return url
}

// Update applies a partial profile change and stores a new picture when given.
func (s *UserService) Update(ctx context.Context, id int64, in ProfileUpdate) (core.User, error) {
	var upd storage.UserUpdate
	if in.Username != nil && strings.TrimSpace(*in.Username) != "" {
		name := strings.TrimSpace(*in.Username)
		upd.Username = &name
	}
	if in.Email != nil && strings.TrimSpace(*in.Email) != "" {
		email := normalizeEmail(*in.Email)
		if !validEmail(email) {
			return core.User{}, &core.FieldError{Field: "email", Err: errors.New("invalid email address")}
		}
		upd.Email = &email
	}
	if in.Password != nil && *in.Password != "" {
		hash, err := auth.HashPassword(*in.Password, s.bcryptCost)
		if err != nil {
			return core.User{}, err
		}
		upd.PasswordHash = &hash
	}

	current, err := s.users.GetUser(ctx, id)
	if err != nil {
		return core.User{}, err
	}

	if len(in.Picture) > 0 {
		if s.pictures == nil {
			return core.User{}, fmt.Errorf("profile pictures are not configured")
		}
		ct, ext, err := blob.DetectImage(in.Picture)
		if err != nil {
			return core.User{}, &core.FieldError{Field: "profilePic", Err: err}
		}
		key := blob.NewKey(id, ext)
		if err := s.pictures.Put(ctx, key, ct, in.Picture); err != nil {
			return core.User{}, fmt.Errorf("store profile picture: %w", err)
		}
		upd.ProfilePic = &key
	}

	if upd.Empty() {
		return core.User{}, ErrNoFieldsToUpdate
	}

	u, err := s.users.UpdateUser(ctx, id, upd)
	if err != nil {
		if upd.ProfilePic != nil {
			s.discardPicture(ctx, *upd.ProfilePic)
		}
		if errors.Is(err, storage.ErrAlreadyExists) {
			return core.User{}, ErrEmailTaken
		}
		return core.User{}, err
	}

	if upd.ProfilePic != nil && current.ProfilePic != "" {
		if err := s.pictures.Delete(ctx, current.ProfilePic); err != nil {
			slog.WarnContext(ctx, "Failed to delete old profile picture", "component", "blob", "object_key", current.ProfilePic, "error", err)
		}
	}
	return u, nil
}

// discardPicture removes an upload the profile update did not keep.
func (s *UserService) discardPicture(ctx context.Context, key string) {
	if err := s.pictures.Delete(ctx, key); err != nil {
		slog.WarnContext(ctx, "Failed to delete unused profile picture", "component", "blob", "object_key", key, "error", err)
	}
}
