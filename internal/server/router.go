package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/InkwellLabs/inkwell/backend/internal/auth"
	"github.com/InkwellLabs/inkwell/backend/internal/comments"
	"github.com/InkwellLabs/inkwell/backend/internal/identity"
	"github.com/InkwellLabs/inkwell/backend/internal/posts"
	"github.com/InkwellLabs/inkwell/backend/internal/profiles"
	"github.com/InkwellLabs/inkwell/backend/internal/uploads"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const identityContextKey = "inkwell_identity_id"

var (
	errMissingAuthenticator   = errors.New("authenticator dependency required")
	errMissingSessionTokens   = errors.New("session token dependency required")
	errMissingProfilesService = errors.New("profiles service dependency required")
	errMissingPostsService    = errors.New("posts service dependency required")
	errMissingCommentsService = errors.New("comments service dependency required")
	errMissingUploadsService  = errors.New("uploads service dependency required")
	errInvalidAuthorization   = errors.New("authorization header missing or invalid")
)

// Authenticator runs the sign-up/sign-in orchestration and resolves identities.
type Authenticator interface {
	Authenticate(ctx context.Context, req identity.Request) (string, error)
	Get(ctx context.Context, identityID string) (identity.Identity, error)
}

// SessionTokens mints and validates session tokens bound to an identity.
type SessionTokens interface {
	IssueSession(ctx context.Context, identityID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP layer to the domain services.
type Dependencies struct {
	Authenticator Authenticator
	SessionTokens SessionTokens
	Profiles      *profiles.Service
	Posts         *posts.Service
	Comments      *comments.Service
	Uploads       *uploads.Service
	MaxImageBytes int64
	Logger        *zap.Logger
}

// NewHTTPHandler assembles the gin router for the blog API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Authenticator == nil {
		return nil, errMissingAuthenticator
	}
	if deps.SessionTokens == nil {
		return nil, errMissingSessionTokens
	}
	if deps.Profiles == nil {
		return nil, errMissingProfilesService
	}
	if deps.Posts == nil {
		return nil, errMissingPostsService
	}
	if deps.Comments == nil {
		return nil, errMissingCommentsService
	}
	if deps.Uploads == nil {
		return nil, errMissingUploadsService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxImageBytes := deps.MaxImageBytes
	if maxImageBytes <= 0 {
		maxImageBytes = 5 << 20
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		authenticator: deps.Authenticator,
		tokens:        deps.SessionTokens,
		profiles:      deps.Profiles,
		posts:         deps.Posts,
		comments:      deps.Comments,
		uploads:       deps.Uploads,
		maxImageBytes: maxImageBytes,
		logger:        logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.POST("/auth", handler.handleAuthenticate)
	router.GET("/posts", handler.handleListPosts)
	router.GET("/posts/:slug", handler.handleGetPost)
	router.GET("/posts/:slug/comments", handler.handleListComments)
	router.GET("/tags", handler.handleListTags)
	router.GET("/images/:id", handler.handleGetImage)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/me", handler.handleCurrentUser)
	protected.GET("/profile/display-name/availability", handler.handleDisplayNameAvailability)
	protected.PUT("/profile/display-name", handler.handleUpdateDisplayName)
	protected.POST("/posts", handler.handleCreatePost)
	protected.POST("/posts/:slug/comments", handler.handleAddComment)
	protected.POST("/images", handler.handleUploadImage)

	return router, nil
}

type httpHandler struct {
	authenticator Authenticator
	tokens        SessionTokens
	profiles      *profiles.Service
	posts         *posts.Service
	comments      *comments.Service
	uploads       *uploads.Service
	maxImageBytes int64
	logger        *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type authRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Flow     string `json:"flow"`
	Name     string `json:"name"`
}

type authResponsePayload struct {
	IdentityID  string `json:"identity_id"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleAuthenticate(c *gin.Context) {
	var request authRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	flow, err := identity.ParseFlow(request.Flow)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_flow"})
		return
	}

	identityID, err := h.authenticator.Authenticate(c.Request.Context(), identity.Request{
		Email:       request.Email,
		Password:    request.Password,
		Flow:        flow,
		DisplayName: request.Name,
	})
	if err != nil {
		status, code := authFailure(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("authentication failed", zap.Error(err))
		}
		c.JSON(status, gin.H{"error": code})
		return
	}

	// Every authenticated identity gets a profile on first touch. A
	// provisioning hiccup must not strand a valid login.
	if _, err := h.profiles.EnsureProfile(c.Request.Context(), identityID); err != nil {
		h.logger.Warn("profile provisioning failed", zap.Error(err))
	}

	token, expiresIn, err := h.tokens.IssueSession(c.Request.Context(), identityID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, authResponsePayload{
		IdentityID:  identityID,
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

// authFailure maps orchestrator errors to transport codes. Sign-in failures
// share one indistinguishable code regardless of cause.
func authFailure(err error) (int, string) {
	switch {
	case errors.Is(err, identity.ErrUnknownFlow):
		return http.StatusBadRequest, "unknown_flow"
	case errors.Is(err, identity.ErrInvalidCredentialsFormat):
		return http.StatusBadRequest, "invalid_credentials_format"
	case errors.Is(err, identity.ErrAlreadyRegistered):
		return http.StatusConflict, "already_registered"
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	identityID, err := h.tokens.ValidateToken(token)
	if err != nil {
		// Expired sessions are routine churn; anything else deserves a warning.
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			h.logger.Info("session token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(identityContextKey, identityID)
	c.Next()
}

// requireAdmin resolves the caller's profile and enforces the admin role.
// It returns the identity id, or an empty string after writing the response.
func (h *httpHandler) requireAdmin(c *gin.Context) string {
	identityID := c.GetString(identityContextKey)
	if identityID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return ""
	}
	profile, err := h.profiles.EnsureProfile(c.Request.Context(), identityID)
	if err != nil {
		h.logger.Error("profile resolution failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return ""
	}
	if profile.Role != identity.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return ""
	}
	return identityID
}

type currentUserPayload struct {
	IdentityID  string `json:"identity_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Bio         string `json:"bio,omitempty"`
}

func (h *httpHandler) handleCurrentUser(c *gin.Context) {
	identityID := c.GetString(identityContextKey)
	record, err := h.authenticator.Get(c.Request.Context(), identityID)
	if err != nil {
		h.logger.Error("identity lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	profile, err := h.profiles.EnsureProfile(c.Request.Context(), identityID)
	if err != nil {
		h.logger.Error("profile provisioning failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, currentUserPayload{
		IdentityID:  identityID,
		Email:       record.Email,
		DisplayName: profile.DisplayName,
		Role:        profile.Role,
		Bio:         profile.Bio,
	})
}

func (h *httpHandler) handleDisplayNameAvailability(c *gin.Context) {
	result, err := h.profiles.CheckAvailability(c.Request.Context(), c.Query("name"))
	if err != nil {
		h.logger.Error("availability check failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	response := gin.H{"available": result.Available}
	if result.Reason != "" {
		response["reason"] = result.Reason
	}
	c.JSON(http.StatusOK, response)
}

type renamePayload struct {
	DisplayName string `json:"display_name"`
}

func (h *httpHandler) handleUpdateDisplayName(c *gin.Context) {
	var request renamePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	identityID := c.GetString(identityContextKey)
	profile, err := h.profiles.UpdateDisplayName(c.Request.Context(), identityID, request.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, profiles.ErrInvalidDisplayName):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_display_name"})
		case errors.Is(err, profiles.ErrDisplayNameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "display_name_taken"})
		default:
			h.logger.Error("display name update failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"display_name": profile.DisplayName})
}

type createPostPayload struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

type postPayload struct {
	ID               string       `json:"id"`
	Title            string       `json:"title"`
	Slug             string       `json:"slug"`
	Excerpt          string       `json:"excerpt"`
	Content          string       `json:"content,omitempty"`
	Tags             []string     `json:"tags"`
	Author           *authorBrief `json:"author,omitempty"`
	CreatedAtSeconds int64        `json:"created_at_s"`
}

type authorBrief struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

func (h *httpHandler) handleCreatePost(c *gin.Context) {
	identityID := h.requireAdmin(c)
	if identityID == "" {
		return
	}

	var request createPostPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	post, err := h.posts.Create(c.Request.Context(), identityID, request.Title, request.Content, request.Tags)
	if err != nil {
		switch {
		case errors.Is(err, posts.ErrInvalidPost):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_post"})
		case errors.Is(err, posts.ErrDuplicateSlug):
			c.JSON(http.StatusConflict, gin.H{"error": "duplicate_slug"})
		default:
			h.logger.Error("post creation failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		}
		return
	}

	c.JSON(http.StatusCreated, postPayload{
		ID:               post.ID,
		Title:            post.Title,
		Slug:             post.Slug,
		Excerpt:          post.Excerpt,
		Content:          post.Content,
		Tags:             post.Tags(),
		CreatedAtSeconds: post.CreatedAtSeconds,
	})
}

type listPostsResponse struct {
	Page       []postPayload `json:"page"`
	NextCursor string        `json:"next_cursor,omitempty"`
	IsDone     bool          `json:"is_done"`
}

func (h *httpHandler) handleListPosts(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		limit = parsed
	}

	result, err := h.posts.List(c.Request.Context(), posts.ListRequest{
		Cursor: c.Query("cursor"),
		Limit:  limit,
		Search: c.Query("search"),
		Tag:    c.Query("tag"),
	})
	if err != nil {
		if errors.Is(err, posts.ErrInvalidCursor) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cursor"})
			return
		}
		h.logger.Error("post listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	response := listPostsResponse{
		Page:       make([]postPayload, 0, len(result.Page)),
		NextCursor: result.NextCursor,
		IsDone:     result.IsDone,
	}
	for _, post := range result.Page {
		response.Page = append(response.Page, postPayload{
			ID:               post.ID,
			Title:            post.Title,
			Slug:             post.Slug,
			Excerpt:          post.Excerpt,
			Tags:             post.Tags(),
			Author:           &authorBrief{Name: post.Author.Name, Email: post.Author.Email},
			CreatedAtSeconds: post.CreatedAtSeconds,
		})
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleGetPost(c *gin.Context) {
	post, err := h.posts.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		if errors.Is(err, posts.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "post_not_found"})
			return
		}
		h.logger.Error("post lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, postPayload{
		ID:               post.ID,
		Title:            post.Title,
		Slug:             post.Slug,
		Excerpt:          post.Excerpt,
		Content:          post.Content,
		Tags:             post.Tags(),
		Author:           &authorBrief{Name: post.Author.Name, Email: post.Author.Email},
		CreatedAtSeconds: post.CreatedAtSeconds,
	})
}

func (h *httpHandler) handleListTags(c *gin.Context) {
	tags, err := h.posts.AllTags(c.Request.Context())
	if err != nil {
		h.logger.Error("tag aggregation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	type tagPayload struct {
		Tag   string `json:"tag"`
		Count int    `json:"count"`
	}
	response := make([]tagPayload, 0, len(tags))
	for _, tag := range tags {
		response = append(response, tagPayload{Tag: tag.Tag, Count: tag.Count})
	}
	c.JSON(http.StatusOK, gin.H{"tags": response})
}

type commentPayload struct {
	ID               string      `json:"id"`
	ParentID         *string     `json:"parent_id,omitempty"`
	Content          string      `json:"content"`
	Author           authorBrief `json:"author"`
	CreatedAtSeconds int64       `json:"created_at_s"`
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	post, err := h.posts.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		if errors.Is(err, posts.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "post_not_found"})
			return
		}
		h.logger.Error("post lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	thread, err := h.comments.ListForPost(c.Request.Context(), post.ID)
	if err != nil {
		h.logger.Error("comment listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	response := make([]commentPayload, 0, len(thread))
	for _, comment := range thread {
		response = append(response, commentPayload{
			ID:               comment.ID,
			ParentID:         comment.ParentID,
			Content:          comment.Content,
			Author:           authorBrief{Name: comment.Author.Name, Email: comment.Author.Email},
			CreatedAtSeconds: comment.CreatedAtSeconds,
		})
	}
	c.JSON(http.StatusOK, gin.H{"comments": response})
}

type addCommentPayload struct {
	Content  string  `json:"content"`
	ParentID *string `json:"parent_id"`
}

func (h *httpHandler) handleAddComment(c *gin.Context) {
	identityID := c.GetString(identityContextKey)

	post, err := h.posts.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		if errors.Is(err, posts.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "post_not_found"})
			return
		}
		h.logger.Error("post lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	var request addCommentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	comment, err := h.comments.Add(c.Request.Context(), post.ID, identityID, request.Content, request.ParentID)
	if err != nil {
		switch {
		case errors.Is(err, comments.ErrInvalidComment):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_comment"})
		case errors.Is(err, comments.ErrInvalidParent):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_parent"})
		case errors.Is(err, comments.ErrPostNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "post_not_found"})
		default:
			h.logger.Error("comment creation failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		}
		return
	}

	c.JSON(http.StatusCreated, commentPayload{
		ID:               comment.ID,
		ParentID:         comment.ParentID,
		Content:          comment.Content,
		CreatedAtSeconds: comment.CreatedAtSeconds,
	})
}

func (h *httpHandler) handleUploadImage(c *gin.Context) {
	identityID := h.requireAdmin(c)
	if identityID == "" {
		return
	}

	reader := http.MaxBytesReader(c.Writer, c.Request.Body, h.maxImageBytes)
	data, err := io.ReadAll(reader)
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image_too_large"})
		return
	}

	image, err := h.uploads.Store(c.Request.Context(), identityID, c.ContentType(), data)
	if err != nil {
		switch {
		case errors.Is(err, uploads.ErrUnsupportedImageType):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_image_type"})
		case errors.Is(err, uploads.ErrEmptyImage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty_image"})
		case errors.Is(err, uploads.ErrImageTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image_too_large"})
		default:
			h.logger.Error("image upload failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"image_id": image.ID,
		"url":      "/images/" + image.ID,
	})
}

func (h *httpHandler) handleGetImage(c *gin.Context) {
	image, err := h.uploads.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, uploads.ErrImageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "image_not_found"})
			return
		}
		h.logger.Error("image lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.Data(http.StatusOK, image.ContentType, image.Data)
}
