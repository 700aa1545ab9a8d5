package http

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

const profilePicField = "profilePic"

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	body, ok := requireBody(w, r)
	if !ok {
		return
	}

	// Passwords are taken verbatim; only the other fields are sanitized.
	u, err := s.deps.Users.Signup(r.Context(), body.Get("username"), body.Get("email"), body.Raw("password"))
	if err != nil {
		respondError(w, r, err, "User not found", applog.OpSignup)
		return
	}

	NewJSONResponse().
		Status(http.StatusCreated).
		Message("User created successfully").
		Field("userId", u.ID).
		Write(w)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	body, ok := requireBody(w, r)
	if !ok {
		return
	}

	u, token, err := s.deps.Users.Login(r.Context(), body.Get("email"), body.Raw("password"))
	if err != nil {
		respondError(w, r, err, "User not found", applog.OpLogin)
		return
	}

	NewJSONResponse().
		Message("Login successful").
		Field("userId", u.ID).
		Field("email", u.Email).
		Field("username", u.Username).
		Field("token", token).
		Write(w)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	u, err := s.deps.Users.Get(r.Context(), userID)
	if err != nil {
		respondError(w, r, err, "User not found", applog.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(u, s.deps.Users.PictureURL(r.Context(), u)))
}

// handleUpdateUser accepts multipart form data (with an optional profilePic
// file) or a JSON/form body without a picture.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var (
		in  services.ProfileUpdate
		err error
	)
	if isMultipart(r) {
		in, err = s.readMultipartProfile(w, r)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "Profile picture is too large")
				return
			}
			writeError(w, http.StatusBadRequest, "Invalid multipart form")
			return
		}
	} else {
		body, ok := requireBody(w, r)
		if !ok {
			return
		}
		in = services.ProfileUpdate{
			Username: optional(body.Get("username")),
			Email:    optional(body.Get("email")),
			Password: optional(body.Raw("password")),
		}
	}

	u, err := s.deps.Users.Update(r.Context(), userID, in)
	if err != nil {
		respondError(w, r, err, "User not found", applog.OpUpdate)
		return
	}

	NewJSONResponse().
		Message("Profile updated successfully").
		Field("user", newUserResponse(u, s.deps.Users.PictureURL(r.Context(), u))).
		Write(w)
}

func (s *Server) readMultipartProfile(w http.ResponseWriter, r *http.Request) (services.ProfileUpdate, error) {
	// Room for the text fields on top of the picture itself.
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.UploadMaxBytes+64<<10)
	if err := r.ParseMultipartForm(s.deps.UploadMaxBytes); err != nil {
		return services.ProfileUpdate{}, err
	}
	defer r.MultipartForm.RemoveAll()

	in := services.ProfileUpdate{
		Username: optional(sanitizeInput(r.FormValue("username"))),
		Email:    optional(sanitizeInput(r.FormValue("email"))),
		Password: optional(r.FormValue("password")),
	}

	file, _, err := r.FormFile(profilePicField)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return in, nil
	case err != nil:
		return services.ProfileUpdate{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.deps.UploadMaxBytes+1))
	if err != nil {
		return services.ProfileUpdate{}, err
	}
	if int64(len(data)) > s.deps.UploadMaxBytes {
		return services.ProfileUpdate{}, &http.MaxBytesError{Limit: s.deps.UploadMaxBytes}
	}
	in.Picture = data
	return in, nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.EqualFold(mediaType, "multipart/form-data")
}

// optional turns a blank value into nil.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
