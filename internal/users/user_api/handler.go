package user_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"park-ticketing/internal/auth"
	"park-ticketing/internal/logger"
	"park-ticketing/internal/models"
	"park-ticketing/internal/users"
	"park-ticketing/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Directory *users.Directory
	Tokens    *auth.Tokens
	Logger    *logger.Logger
}

func NewHandler(directory *users.Directory, tokens *auth.Tokens, log *logger.Logger) *Handler {
	return &Handler{Directory: directory, Tokens: tokens, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)
	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.ListUsers)
		r.Post("/", h.CreateUser)
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		utils.WriteError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.Directory.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.Logger.LogSecurity("LOGIN_FAILED", req.Email)
		utils.WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	h.respondWithToken(w, http.StatusOK, user)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, h.Directory.All(r.Context()))
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" {
		utils.WriteError(w, http.StatusBadRequest, "name and email are required")
		return
	}

	user, err := h.Directory.Add(r.Context(), req.Name, req.Email, req.Password)
	if errors.Is(err, users.ErrInvalidEmail) {
		utils.WriteError(w, http.StatusBadRequest, "invalid email address")
		return
	}
	if errors.Is(err, users.ErrEmailTaken) {
		utils.WriteError(w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		h.Logger.Error("USERS", fmt.Sprintf("Failed to create user: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	h.Logger.Info("USERS", fmt.Sprintf("Created user %d", user.ID))
	h.respondWithToken(w, http.StatusCreated, user)
}

func (h *Handler) respondWithToken(w http.ResponseWriter, status int, user *models.User) {
	token, err := h.Tokens.Issue(user.ID)
	if err != nil {
		h.Logger.Error("AUTH", fmt.Sprintf("Failed to issue token for user %d: %v", user.ID, err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	utils.WriteJSON(w, status, models.AuthResponse{User: *user, Token: token})
}
