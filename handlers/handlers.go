package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"bountyboard/service"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
)

type Handler struct {
	svc       service.Service
	jwtSecret string
	uploadDir string
}

func NewHandler(svc service.Service, jwtSecret, uploadDir string) Handler {
	return Handler{
		svc:       svc,
		jwtSecret: jwtSecret,
		uploadDir: uploadDir,
	}
}

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User  interface{} `json:"user"`
	Token string      `json:"token"`
}

type CreateBountyRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Reward      int    `json:"reward"`
}

type CommentRequest struct {
	Message string `json:"message"`
}

type CompleteRequest struct {
	WinnerID int `json:"winnerId"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "username & password required")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "username & password required")
		return
	}
	user, token, err := h.svc.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, AuthResponse{User: user, Token: token})
}

func (h Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "username & password required")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "username & password required")
		return
	}
	user, token, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, AuthResponse{User: user, Token: token})
}

func (h Handler) MeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	user, err := h.svc.GetMe(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, user)
}

func (h Handler) ListBountiesHandler(w http.ResponseWriter, r *http.Request) {
	bounties, err := h.svc.ListBounties(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, bounties)
}

func (h Handler) CreateBountyHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	var req CreateBountyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid input")
		return
	}
	if req.Title == "" || req.Reward <= 0 {
		respondWithError(w, http.StatusBadRequest, "invalid input")
		return
	}
	bounty, err := h.svc.PostBounty(
		r.Context(),
		userID,
		req.Title,
		req.Description,
		req.Reward,
	)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, bounty)
}

func (h Handler) ApplyHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	bountyID, ok := bountyIDFromPath(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid bounty id")
		return
	}
	app, err := h.svc.Apply(r.Context(), bountyID, userID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, app)
}

func (h Handler) ListApplicationsHandler(w http.ResponseWriter, r *http.Request) {
	bountyID, ok := bountyIDFromPath(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid bounty id")
		return
	}
	apps, err := h.svc.ListApplications(r.Context(), bountyID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, apps)
}

func (h Handler) CreateCommentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	bountyID, ok := bountyIDFromPath(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid bounty id")
		return
	}
	var req CommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "message required")
		return
	}
	if req.Message == "" {
		respondWithError(w, http.StatusBadRequest, "message required")
		return
	}
	comment, err := h.svc.AddComment(r.Context(), bountyID, userID, req.Message)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, comment)
}

func (h Handler) ListCommentsHandler(w http.ResponseWriter, r *http.Request) {
	bountyID, ok := bountyIDFromPath(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid bounty id")
		return
	}
	comments, err := h.svc.ListComments(r.Context(), bountyID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, comments)
}

func (h Handler) CompleteBountyHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	bountyID, ok := bountyIDFromPath(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid bounty id")
		return
	}
	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "winnerId required")
		return
	}
	if req.WinnerID == 0 {
		respondWithError(w, http.StatusBadRequest, "winnerId required")
		return
	}
	if err := h.svc.CompleteBounty(r.Context(), bountyID, userID, req.WinnerID); err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "completed"})
}

func (h Handler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	bountyID, ok := bountyIDFromPath(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid bounty id")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	name := fmt.Sprintf("%d_%s", time.Now().UnixMilli(), filepath.Base(header.Filename))
	dst := filepath.Join(h.uploadDir, name)
	out, err := os.Create(dst)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(dst)
		respondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := out.Close(); err != nil {
		respondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	att, err := h.svc.AddAttachment(
		r.Context(),
		bountyID,
		userID,
		header.Filename,
		dst,
	)
	if err != nil {
		os.Remove(dst)
		h.respondServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, att)
}

func (h Handler) ListAttachmentsHandler(w http.ResponseWriter, r *http.Request) {
	bountyID, ok := bountyIDFromPath(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid bounty id")
		return
	}
	attachments, err := h.svc.ListAttachments(r.Context(), bountyID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, attachments)
}

func (h Handler) MyTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	transactions, err := h.svc.ListMyTransactions(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, transactions)
}

func (h Handler) JWTMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondWithError(w, http.StatusUnauthorized, "No token")
			return
		}

		const bearerPrefix = "Bearer "
		if len(authHeader) <= len(bearerPrefix) {
			respondWithError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		tokenStr := authHeader[len(bearerPrefix):]
		token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
			return []byte(h.jwtSecret), nil
		})
		if err != nil || !token.Valid {
			respondWithError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		uid, err := strconv.Atoi(stringify(claims["id"]))
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), "user_id", uid)
		next(w, r.WithContext(ctx))
	}
}

// respondServiceError maps business-rule failures to 400, as the API
// contract treats them all as generic request errors; anything unexpected
// becomes an opaque 500.
func (h Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrUsernameTaken),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrInsufficientFunds),
		errors.Is(err, service.ErrBountyNotFound),
		errors.Is(err, service.ErrNotCreator),
		errors.Is(err, service.ErrNotOpen):
		respondWithError(w, http.StatusBadRequest, err.Error())
	default:
		respondWithError(w, http.StatusInternalServerError, "internal error")
	}
}

func userIDFromContext(r *http.Request) (int, bool) {
	userID, ok := r.Context().Value("user_id").(int)
	return userID, ok
}

func bountyIDFromPath(r *http.Request) (int, bool) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func stringify(val interface{}) string {
	switch v := val.(type) {
	case string:
		return v
	case float64:
		return strconv.Itoa(int(v))
	default:
		return ""
	}
}
