package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/InkwellLabs/inkwell/backend/internal/auth"
	"github.com/InkwellLabs/inkwell/backend/internal/comments"
	"github.com/InkwellLabs/inkwell/backend/internal/identity"
	"github.com/InkwellLabs/inkwell/backend/internal/ids"
	"github.com/InkwellLabs/inkwell/backend/internal/posts"
	"github.com/InkwellLabs/inkwell/backend/internal/profiles"
	"github.com/InkwellLabs/inkwell/backend/internal/uploads"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// fastHashParams keeps password hashing cheap for handler tests.
var fastHashParams = auth.Argon2Params{
	MemoryKiB:   1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

type routerFixture struct {
	handler http.Handler
	db      *gorm.DB
	clock   *fixtureClock
}

type fixtureClock struct {
	current time.Time
}

func (c *fixtureClock) now() time.Time {
	c.current = c.current.Add(time.Second)
	return c.current
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&identity.Account{},
		&identity.Identity{},
		&profiles.Profile{},
		&posts.Post{},
		&comments.Comment{},
		&uploads.Image{},
	); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	for _, statement := range posts.FTSStatements() {
		if err := db.Exec(statement).Error; err != nil {
			t.Fatalf("failed to install search index: %v", err)
		}
	}

	clock := &fixtureClock{current: time.Unix(1_700_000_000, 0)}
	hasher := auth.NewArgon2Hasher(fastHashParams)
	idProvider := ids.NewUUIDProvider()

	resolver, err := identity.NewResolver(db, hasher)
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}
	identities, err := identity.NewService(identity.ServiceConfig{
		Database:   db,
		Hasher:     hasher,
		Resolver:   resolver,
		IDProvider: idProvider,
		Clock:      clock.now,
	})
	if err != nil {
		t.Fatalf("failed to create identity service: %v", err)
	}
	profilesService, err := profiles.NewService(profiles.ServiceConfig{
		Database:   db,
		Identities: identities,
		IDProvider: idProvider,
		Clock:      clock.now,
	})
	if err != nil {
		t.Fatalf("failed to create profiles service: %v", err)
	}
	postsService, err := posts.NewService(posts.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Clock:      clock.now,
	})
	if err != nil {
		t.Fatalf("failed to create posts service: %v", err)
	}
	commentsService, err := comments.NewService(comments.ServiceConfig{
		Database:   db,
		Posts:      postsService,
		IDProvider: idProvider,
		Clock:      clock.now,
	})
	if err != nil {
		t.Fatalf("failed to create comments service: %v", err)
	}
	uploadsService, err := uploads.NewService(uploads.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Clock:      clock.now,
	})
	if err != nil {
		t.Fatalf("failed to create uploads service: %v", err)
	}
	issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte("server-test-secret"),
		Issuer:        "inkwell-test",
		Audience:      "inkwell-client",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to create session issuer: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Authenticator: identities,
		SessionTokens: issuer,
		Profiles:      profilesService,
		Posts:         postsService,
		Comments:      commentsService,
		Uploads:       uploadsService,
		MaxImageBytes: 1 << 20,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	return &routerFixture{handler: handler, db: db, clock: clock}
}

func (f *routerFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload *bytes.Buffer
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		payload = bytes.NewBuffer(encoded)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	request := httptest.NewRequest(method, path, payload)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

// signUp registers a fresh identity and returns its id and session token.
func (f *routerFixture) signUp(t *testing.T, email, password, name string) (string, string) {
	t.Helper()
	recorder := f.do(t, http.MethodPost, "/auth", "", map[string]string{
		"email":    email,
		"password": password,
		"flow":     "signUp",
		"name":     name,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("sign-up failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	var response authResponsePayload
	decodeBody(t, recorder, &response)
	if response.AccessToken == "" || response.IdentityID == "" {
		t.Fatalf("incomplete auth response: %+v", response)
	}
	return response.IdentityID, response.AccessToken
}

// promoteAdmin flips the stored role for both the identity and its profile.
func (f *routerFixture) promoteAdmin(t *testing.T, identityID string) {
	t.Helper()
	if err := f.db.Model(&identity.Identity{}).Where("id = ?", identityID).
		Update("role", identity.RoleAdmin).Error; err != nil {
		t.Fatalf("failed to promote identity: %v", err)
	}
	if err := f.db.Model(&profiles.Profile{}).Where("owner_id = ?", identityID).
		Update("role", identity.RoleAdmin).Error; err != nil {
		t.Fatalf("failed to promote profile: %v", err)
	}
}
