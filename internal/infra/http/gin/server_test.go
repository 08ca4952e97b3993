package ginserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campustrade/internal/app/dto"
	"campustrade/internal/app/services/auth"
	chatsvc "campustrade/internal/app/services/chat"
	profilesvc "campustrade/internal/app/services/profile"
	domainlisting "campustrade/internal/domain/listing"
	"campustrade/internal/infra/obs"
	"campustrade/internal/infra/security"
	"campustrade/internal/infra/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAvatars struct{ uploaded []byte }

func (f *fakeAvatars) PutAvatar(_ context.Context, userID string, body io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.uploaded = data
	return "https://cdn.test/avatars/" + userID + ".png", nil
}

type testServer struct {
	router   *gin.Engine
	profiles *profilesvc.Service
	avatars  *fakeAvatars
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	codec, err := security.NewJWTCodec("test-secret-0123456789")
	require.NoError(t, err)

	repo := memory.NewChatRepository()
	listings := memory.NewListingDirectory(domainlisting.Listing{ID: "book-1", SellerID: "seller", Title: "Calculus"})
	users := memory.NewProfileRepository()
	avatars := &fakeAvatars{}
	profiles := &profilesvc.Service{Profiles: users, Activity: users, Avatars: avatars}
	authSvc := &auth.Service{Tokens: codec, Names: profiles, SessionTTL: time.Hour, DevLogin: true}
	chat := &chatsvc.Service{Repo: repo, Listings: listings}

	router := NewRouter(ServerConfig{Env: "test"}, obs.Middleware{}, obs.HealthHandlers{}, Handlers{
		Chat:           ChatHandler{Chat: chat},
		User:           UserHandler{Profiles: profiles},
		Auth:           AuthHandler{Service: authSvc},
		Realtime:       RealtimeHandler{Tokens: authSvc},
		AuthMiddleware: AuthMiddleware{Tokens: authSvc}.Handle,
	})
	return &testServer{router: router, profiles: profiles, avatars: avatars}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, user string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/auth/token", "", map[string]string{"user_id": user, "name": "User " + user})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out dto.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, user, out.UserID)
	return out.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestAuth_RequiredAndMe(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/conversations", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := s.login(t, "buyer")
	rec = s.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":"buyer"`)

	prof, err := s.profiles.Profile(context.Background(), "buyer")
	require.NoError(t, err)
	assert.Equal(t, "User buyer", prof.DisplayName)
}

func TestChat_ListingConversationFlow(t *testing.T) {
	s := newTestServer(t)
	buyer := s.login(t, "buyer")
	seller := s.login(t, "seller")
	outsider := s.login(t, "outsider")

	rec := s.do(t, http.MethodPost, "/api/v1/listings/book-1/conversation", buyer, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	conv := decode[dto.Conversation](t, rec)
	assert.Equal(t, "seller", conv.SellerID)
	assert.ElementsMatch(t, []string{"buyer", "seller"}, conv.Participants)

	rec = s.do(t, http.MethodPost, "/api/v1/listings/book-1/conversation", buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, conv.ID, decode[dto.Conversation](t, rec).ID)

	rec = s.do(t, http.MethodPost, "/api/v1/listings/book-1/conversation", seller, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, dto.CodeSelfConversation, decode[dto.ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/v1/listings/missing/conversation", buyer, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	path := "/api/v1/conversations/" + conv.ID
	rec = s.do(t, http.MethodPost, path+"/messages", buyer, map[string]string{"text": "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, dto.CodeEmptyBody, decode[dto.ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodPost, path+"/messages", buyer, map[string]string{"text": "  still available? "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[dto.ChatMessage](t, rec)
	assert.Equal(t, "still available?", first.Text)

	rec = s.do(t, http.MethodPost, path+"/messages", seller, map[string]string{"text": "yes"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, path+"/messages", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[dto.ChatMessageList](t, rec)
	require.Len(t, list.Items, 2)
	assert.Equal(t, first.ID, list.Items[0].ID)
	assert.Equal(t, "yes", list.Items[1].Text)

	rec = s.do(t, http.MethodGet, path, outsider, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(t, http.MethodPost, path+"/messages", outsider, map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/v1/conversations/nope", buyer, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/conversations", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	inbox := decode[dto.ConversationList](t, rec)
	require.Len(t, inbox.Items, 1)
	require.NotNil(t, inbox.Items[0].LastMessageAt)
}

func TestUser_Activity(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "buyer")

	rec := s.do(t, http.MethodGet, "/api/v1/users/buyer/activity", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "offline", decode[dto.Activity](t, rec).Label)

	rec = s.do(t, http.MethodPost, "/api/v1/me/activity", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/users/buyer/activity", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	act := decode[dto.Activity](t, rec)
	assert.Equal(t, "active now", act.Label)
	assert.NotNil(t, act.LastActiveAt)

	rec = s.do(t, http.MethodGet, "/api/v1/users/buyer/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User buyer", decode[dto.Profile](t, rec).DisplayName)

	rec = s.do(t, http.MethodGet, "/api/v1/users/ghost/profile", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func multipartAvatar(t *testing.T, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="me.png"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUser_UploadAvatar(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "buyer")

	upload := func(contentType string) *httptest.ResponseRecorder {
		body, formType := multipartAvatar(t, contentType, []byte("\x89PNG fake"))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/me/avatar", body)
		req.Header.Set("Content-Type", formType)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec
	}

	rec := upload("text/plain")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, s.avatars.uploaded)

	rec = upload("image/png")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "https://cdn.test/avatars/buyer.png")
	assert.Equal(t, []byte("\x89PNG fake"), s.avatars.uploaded)

	prof, err := s.profiles.Profile(context.Background(), "buyer")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/avatars/buyer.png", prof.AvatarURL)
}

func TestRealtime_RejectsMissingToken(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/realtime", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/realtime?token=bad", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExtractBearerToken(t *testing.T) {
	assert.Equal(t, "abc", extractBearerToken("Bearer abc"))
	assert.Equal(t, "abc", extractBearerToken("bearer  abc "))
	assert.Equal(t, "", extractBearerToken("Basic abc"))
	assert.Equal(t, "", extractBearerToken(""))
}
