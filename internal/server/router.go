package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userContextKey           = "notes_platform_user"
	loginRoute               = "/login"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingNotesRepository = errors.New("notes repository dependency required")
	errMissingSessionStore    = errors.New("session store dependency required")
	errMissingTokenManager    = errors.New("token manager dependency required")
	errMissingCookieName      = errors.New("session cookie name required")
	errInvalidTags            = errors.New("tags must be a list or a comma-separated string")
)

// NotesRepository is the note collection consumed by the routes.
type NotesRepository interface {
	AddNote(ctx context.Context, input notes.NoteInput) (notes.Note, error)
	UpdateNote(ctx context.Context, id string, update notes.NoteUpdate) (notes.Note, bool)
	DeleteNote(ctx context.Context, id string) bool
	GetNoteByID(id string) (notes.Note, bool)
	ListNotes() []notes.Note
}

// SessionStore is the single-slot session consumed by the routes.
type SessionStore interface {
	Login(ctx context.Context, email, password string) (bool, error)
	Logout(ctx context.Context)
	ActiveSession() (session.User, string, bool)
}

// TokenManager issues and validates the session token carried by clients.
type TokenManager interface {
	Issue(user session.User, sessionID string) (string, int64, error)
	Validate(token string) (auth.SessionClaims, error)
}

type Dependencies struct {
	Notes             NotesRepository
	Sessions          SessionStore
	Tokens            TokenManager
	Events            *NoteEventDispatcher
	CookieName        string
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Notes == nil {
		return nil, errMissingNotesRepository
	}
	if deps.Sessions == nil {
		return nil, errMissingSessionStore
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenManager
	}
	cookieName := strings.TrimSpace(deps.CookieName)
	if cookieName == "" {
		return nil, errMissingCookieName
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := deps.Events
	if events == nil {
		events = NewNoteEventDispatcher(NoteEventDispatcherConfig{Logger: logger})
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		notes:      deps.Notes,
		sessions:   deps.Sessions,
		tokens:     deps.Tokens,
		events:     events,
		cookieName: cookieName,
		heartbeat:  heartbeat,
		logger:     logger,
	}

	router.POST("/auth/login", handler.handleLogin)
	router.POST("/auth/logout", handler.handleLogout)

	protected := router.Group("/")
	protected.Use(handler.requireSession)
	protected.GET("/auth/session", handler.handleCurrentSession)
	protected.GET("/notes", handler.handleListNotes)
	protected.POST("/notes", handler.handleCreateNote)
	protected.GET("/notes/events", handler.handleNoteEvents)
	protected.GET("/notes/:id", handler.handleGetNote)
	protected.PUT("/notes/:id", handler.handleUpdateNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)

	return router, nil
}

type httpHandler struct {
	notes      NotesRepository
	sessions   SessionStore
	tokens     TokenManager
	events     *NoteEventDispatcher
	cookieName string
	heartbeat  time.Duration
	logger     *zap.Logger
}

type loginRequestPayload struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponsePayload struct {
	User        session.User `json:"user"`
	AccessToken string       `json:"access_token"`
	ExpiresIn   int64        `json:"expires_in"`
	TokenType   string       `json:"token_type"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	ok, err := h.sessions.Login(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.logger.Error("login attempt failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "login_unavailable"})
		return
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials", "message": session.FailedLoginMessage})
		return
	}

	user, sessionID, active := h.sessions.ActiveSession()
	if !active {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials", "message": session.FailedLoginMessage})
		return
	}

	token, expiresIn, err := h.tokens.Issue(user, sessionID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, token, int(expiresIn), "/", "", false, true)
	c.JSON(http.StatusOK, loginResponsePayload{
		User:        user,
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	h.sessions.Logout(c.Request.Context())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleCurrentSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": currentUser(c)})
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notes": h.notes.ListNotes()})
}

type noteDetailPayload struct {
	Note    notes.Note `json:"note"`
	CanEdit bool       `json:"can_edit"`
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	note, ok := h.notes.GetNoteByID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "note_not_found"})
		return
	}
	c.JSON(http.StatusOK, noteDetailPayload{
		Note:    note,
		CanEdit: notes.CanEdit(currentUser(c), note),
	})
}

type createNoteRequestPayload struct {
	Title   string          `json:"title"`
	Content string          `json:"content"`
	Tags    json.RawMessage `json:"tags"`
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	var request createNoteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	title := strings.TrimSpace(request.Title)
	content := strings.TrimSpace(request.Content)
	if title == "" || content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_note"})
		return
	}
	tags, err := parseTagsField(request.Tags)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_tags"})
		return
	}

	user := currentUser(c)
	created, err := h.notes.AddNote(c.Request.Context(), notes.NoteInput{
		Title:   title,
		Content: content,
		Author:  user.Name,
		Tags:    tags,
	})
	if errors.Is(err, notes.ErrNoActiveSession) {
		h.abortUnauthenticated(c)
		return
	}
	if err != nil {
		h.logger.Error("failed to create note", zap.Error(err), zap.String("user_id", user.ID))
		payload := gin.H{"error": "create_failed"}
		var serviceErr *notes.ServiceError
		if errors.As(err, &serviceErr) {
			payload["code"] = serviceErr.Code()
		}
		c.JSON(http.StatusInternalServerError, payload)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"note": created})
}

type updateNoteRequestPayload struct {
	Title   *string         `json:"title"`
	Content *string         `json:"content"`
	Tags    json.RawMessage `json:"tags"`
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	note, ok := h.ownedNote(c)
	if !ok {
		return
	}

	var request updateNoteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	var update notes.NoteUpdate
	if request.Title != nil {
		title := strings.TrimSpace(*request.Title)
		if title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_note"})
			return
		}
		update.Title = &title
	}
	if request.Content != nil {
		content := strings.TrimSpace(*request.Content)
		if content == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_note"})
			return
		}
		update.Content = &content
	}
	if len(request.Tags) > 0 {
		tags, err := parseTagsField(request.Tags)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_tags"})
			return
		}
		update.Tags = &tags
	}
	if update.IsEmpty() {
		c.JSON(http.StatusOK, gin.H{"note": note})
		return
	}

	updated, ok := h.notes.UpdateNote(c.Request.Context(), note.ID, update)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "note_not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"note": updated})
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	note, ok := h.ownedNote(c)
	if !ok {
		return
	}
	if !h.notes.DeleteNote(c.Request.Context(), note.ID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "note_not_found"})
		return
	}
	c.Status(http.StatusNoContent)
}

type noteEventPayload struct {
	Source    string   `json:"source"`
	Kind      string   `json:"kind,omitempty"`
	NoteIDs   []string `json:"note_ids,omitempty"`
	Timestamp string   `json:"timestamp"`
}

func (h *httpHandler) handleNoteEvents(c *gin.Context) {
	user := currentUser(c)
	ctx := c.Request.Context()
	stream, cleanup := h.events.Subscribe(ctx, user.ID)
	defer cleanup()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, noteEventPayload{
				Source:    noteEventSource,
				Kind:      string(message.Kind),
				NoteIDs:   message.NoteIDs,
				Timestamp: message.Timestamp.UTC().Format(time.RFC3339Nano),
			})
			return true
		case tick := <-ticker.C:
			c.SSEvent(noteEventHeartbeat, noteEventPayload{
				Source:    noteEventSource,
				Timestamp: tick.UTC().Format(time.RFC3339Nano),
			})
			return true
		}
	})
}

// requireSession admits requests carrying a valid token issued for the active session.
// Tokens from an earlier login of the same user are rejected.
func (h *httpHandler) requireSession(c *gin.Context) {
	token, err := auth.TokenFromRequest(c.Request, h.cookieName)
	if err != nil {
		h.abortUnauthenticated(c)
		return
	}
	claims, err := h.tokens.Validate(token)
	if err != nil {
		h.logger.Warn("session token rejected", zap.Error(err))
		h.abortUnauthenticated(c)
		return
	}
	user, sessionID, ok := h.sessions.ActiveSession()
	if !ok || user.ID != claims.Subject || sessionID != claims.ID {
		h.abortUnauthenticated(c)
		return
	}
	c.Set(userContextKey, user)
	c.Next()
}

// ownedNote resolves the :id note and rejects callers who do not own it.
func (h *httpHandler) ownedNote(c *gin.Context) (notes.Note, bool) {
	note, ok := h.notes.GetNoteByID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "note_not_found"})
		return notes.Note{}, false
	}
	if !notes.CanEdit(currentUser(c), note) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return notes.Note{}, false
	}
	return note, true
}

func (h *httpHandler) abortUnauthenticated(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "redirect": loginRoute})
}

func currentUser(c *gin.Context) session.User {
	value, ok := c.Get(userContextKey)
	if !ok {
		return session.User{}
	}
	user, _ := value.(session.User)
	return user
}

func parseTagsField(raw json.RawMessage) ([]string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return []string{}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return notes.NormalizeTags(list), nil
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		return notes.ParseTags(joined), nil
	}
	return nil, errInvalidTags
}
