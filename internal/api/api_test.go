package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigboard/internal/alerts"
	"gigboard/internal/application"
	"gigboard/internal/auth"
	"gigboard/internal/chat"
	"gigboard/internal/clock"
	"gigboard/internal/config"
	"gigboard/internal/domain"
	"gigboard/internal/engagement"
	"gigboard/internal/lifecycle"
	"gigboard/internal/notify"
	"gigboard/internal/realtime"
	"gigboard/internal/storage"
	"gigboard/internal/store"
	"gigboard/internal/store/memory"
)

type testServer struct {
	router        *gin.Engine
	store         *store.Store
	hub           *realtime.Hub
	notifications *notify.Service
	uploads       string
}

func newTestServer(t *testing.T, requireToken bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := memory.New()
	clk := clock.NewMonotonic(clock.Real{})
	hub := realtime.NewHub(32, nil)

	authService, err := auth.NewAuthService("test-secret", time.Hour)
	require.NoError(t, err)

	uploads := t.TempDir()
	objects, err := storage.NewLocalStorage(uploads)
	require.NoError(t, err)

	notifications := notify.NewService(st.Notifications, hub, clk, nil)
	chats := chat.NewService(st.Messages, st.Users, hub, clk, nil)
	notifier := alerts.NewNotifier(st.Users, notifications, nil)

	cfg := &config.Config{
		Auth:     config.AuthConfig{LoginRateLimitPerHour: 10},
		Realtime: config.RealtimeConfig{RequireToken: requireToken},
	}

	router := NewRouter(discardLogger())
	RegisterRoutes(router, Deps{
		Store:         st,
		Auth:          authService,
		Jobs:          lifecycle.NewManager(st.Jobs, notifier, clk, nil),
		Applications:  application.NewService(st, notifications, chats, clk, nil),
		Notifications: notifications,
		Chat:          chats,
		Engagement:    engagement.NewService(st, notifications, clk, nil),
		Hub:           hub,
		Attachments:   storage.NewAttachments(objects, storage.NopScanner{}, 1<<20, nil),
		Clock:         clk,
		Config:        cfg,
		Logger:        discardLogger(),
	})

	return &testServer{router: router, store: st, hub: hub, notifications: notifications, uploads: uploads}
}

// storedFiles 统计本地存储目录下的文件数。
func (s *testServer) storedFiles(t *testing.T) int {
	t.Helper()
	count := 0
	err := filepath.WalkDir(s.uploads, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	return count
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
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

type account struct {
	User  domain.User
	Token string
}

func (s *testServer) signup(t *testing.T, username string, role domain.Role) account {
	t.Helper()
	email := username + "@example.com"
	rec := s.do(t, http.MethodPost, "/register", "", gin.H{
		"email":    email,
		"username": username,
		"password": "correct-horse",
		"role":     string(role),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/login", "", gin.H{"email": email, "password": "correct-horse"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp tokenResponse
	decode(t, rec, &resp)
	return account{User: resp.User, Token: resp.AccessToken}
}

func (s *testServer) createJob(t *testing.T, client account, title string, skills ...string) domain.Job {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/createjob", client.Token, gin.H{
		"title":         title,
		"skills":        skills,
		"timerDuration": 3600,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var job domain.Job
	decode(t, rec, &job)
	return job
}

func (s *testServer) apply(t *testing.T, freelancer account, jobID string, withResume bool) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("coverLetter", "I have shipped this before."))
	if withResume {
		part, err := writer.CreateFormFile("resume", "cv.pdf")
		require.NoError(t, err)
		_, err = part.Write([]byte("%PDF-1.4 resume"))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/apply-job/"+jobID, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+freelancer.Token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	decode(t, rec, &body)
	return body
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "realtime_connections")
}

func TestRegisterLoginAndMe(t *testing.T) {
	s := newTestServer(t, true)
	acct := s.signup(t, "alice", domain.RoleFreelancer)

	rec := s.do(t, http.MethodGet, "/me", acct.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me domain.User
	decode(t, rec, &me)
	assert.Equal(t, acct.User.ID, me.ID)
	assert.Equal(t, domain.RoleFreelancer, me.Role)
	assert.NotContains(t, rec.Body.String(), "correct-horse")

	rec = s.do(t, http.MethodPost, "/register", "", gin.H{
		"email": "alice@example.com", "username": "alice2", "password": "correct-horse", "role": "freelancer",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/login", "", gin.H{"email": "alice@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	s := newTestServer(t, true)
	rec := s.do(t, http.MethodPost, "/register", "", gin.H{
		"email": "bob@example.com", "username": "bob", "password": "correct-horse", "role": "admin",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := errorBody(t, rec)
	assert.Equal(t, "VALIDATION", body["code"])
	assert.Equal(t, "role", body["field"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, true)
	for _, path := range []string{"/get-notifications", "/api/chat/conversations", "/me"} {
		rec := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := s.do(t, http.MethodGet, "/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateJobErrors(t *testing.T) {
	s := newTestServer(t, true)
	client := s.signup(t, "acme", domain.RoleClient)
	freelancer := s.signup(t, "dev", domain.RoleFreelancer)

	rec := s.do(t, http.MethodPost, "/createjob", freelancer.Token, gin.H{
		"title": "Go dev", "skills": []string{"Go"}, "timerDuration": 60,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", errorBody(t, rec)["code"])

	rec = s.do(t, http.MethodPost, "/createjob", client.Token, gin.H{
		"skills": []string{"Go"}, "timerDuration": 60,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "title", errorBody(t, rec)["field"])
}

func TestJobCRUD(t *testing.T) {
	s := newTestServer(t, true)
	client := s.signup(t, "acme", domain.RoleClient)
	other := s.signup(t, "globex", domain.RoleClient)
	job := s.createJob(t, client, "Go developer", "Go", "Kubernetes")

	rec := s.do(t, http.MethodGet, "/jobs/"+job.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/update-job/"+job.ID, other.Token, gin.H{"title": "Hijacked"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/update-job/"+job.ID, client.Token, gin.H{"title": "Senior Go developer", "status": "closed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated domain.Job
	decode(t, rec, &updated)
	assert.Equal(t, "Senior Go developer", updated.Title)
	assert.Equal(t, domain.JobClosed, updated.Status)
	assert.True(t, job.ExpiryTime.Equal(updated.ExpiryTime))

	rec = s.do(t, http.MethodPost, "/update-job/"+job.ID, client.Token, gin.H{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/jobs?clientId="+client.User.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Jobs []domain.Job `json:"jobs"`
	}
	decode(t, rec, &list)
	assert.Len(t, list.Jobs, 1)

	rec = s.do(t, http.MethodDelete, "/delete-job/"+job.ID, client.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/jobs/"+job.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorBody(t, rec)["code"])
}

func TestIncrementApplyClicksIsPublic(t *testing.T) {
	s := newTestServer(t, true)
	client := s.signup(t, "acme", domain.RoleClient)
	job := s.createJob(t, client, "Go developer", "Go")

	for i := 1; i <= 3; i++ {
		rec := s.do(t, http.MethodPost, "/increment-apply-clicks/"+job.ID, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			ApplyClicks int64 `json:"applyClicks"`
		}
		decode(t, rec, &body)
		assert.Equal(t, int64(i), body.ApplyClicks)
	}

	rec := s.do(t, http.MethodPost, "/increment-apply-clicks/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApplicationFlow(t *testing.T) {
	s := newTestServer(t, true)
	client := s.signup(t, "acme", domain.RoleClient)
	freelancer := s.signup(t, "dev", domain.RoleFreelancer)
	job := s.createJob(t, client, "Go developer", "Go")

	rec := s.apply(t, freelancer, job.ID, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var applied struct {
		Application domain.Application `json:"application"`
	}
	decode(t, rec, &applied)
	app := applied.Application
	assert.Equal(t, domain.ApplicationPending, app.Status)
	assert.Equal(t, "cv.pdf", app.Resume.Filename)

	rec = s.apply(t, freelancer, job.ID, true)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE", errorBody(t, rec)["code"])

	rec = s.apply(t, freelancer, job.ID, false)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE", errorBody(t, rec)["code"])
	assert.Equal(t, 1, s.storedFiles(t), "rejected re-applies must not upload files")

	rec = s.do(t, http.MethodGet, "/get-notifications", client.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var inbox struct {
		Notifications []domain.Notification `json:"notifications"`
		UnreadCount   int                   `json:"unreadCount"`
	}
	decode(t, rec, &inbox)
	require.Len(t, inbox.Notifications, 1)
	assert.Equal(t, domain.NotificationJobApplication, inbox.Notifications[0].Type)
	assert.Equal(t, 1, inbox.UnreadCount)

	rec = s.do(t, http.MethodPost, "/mark-notification-read/"+inbox.Notifications[0].ID, freelancer.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodPost, "/mark-notification-read/"+inbox.Notifications[0].ID, client.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/update-application-status/"+app.ID, client.Token, gin.H{"status": "accepted"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/update-application-status/"+app.ID, client.Token, gin.H{"status": "rejected"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_STATE", errorBody(t, rec)["code"])

	rec = s.do(t, http.MethodGet, "/api/chat/history/"+client.User.ID, freelancer.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []domain.ChatMessage
	decode(t, rec, &history)
	require.Len(t, history, 2)
	assert.Equal(t, client.User.ID, history[0].SenderID)

	rec = s.do(t, http.MethodGet, "/api/chat/conversations", freelancer.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var conversations []domain.ConversationSummary
	decode(t, rec, &conversations)
	require.Len(t, conversations, 1)
	assert.Equal(t, 1, conversations[0].UnreadCount)

	rec = s.do(t, http.MethodPost, "/api/chat/read/"+client.User.ID, freelancer.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":1}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/mark-all-notifications-read", freelancer.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/job-applications/"+job.ID, freelancer.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(t, http.MethodGet, "/my-applications", freelancer.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), app.ID)
}

func TestApplyRequiresResume(t *testing.T) {
	s := newTestServer(t, true)
	client := s.signup(t, "acme", domain.RoleClient)
	freelancer := s.signup(t, "dev", domain.RoleFreelancer)
	job := s.createJob(t, client, "Go developer", "Go")

	rec := s.apply(t, freelancer, job.ID, false)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "resume", errorBody(t, rec)["field"])

	rec = s.apply(t, client, job.ID, true)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.apply(t, freelancer, "missing", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScheduleInterviewEndpoint(t *testing.T) {
	s := newTestServer(t, true)
	client := s.signup(t, "acme", domain.RoleClient)
	freelancer := s.signup(t, "dev", domain.RoleFreelancer)
	job := s.createJob(t, client, "Go developer", "Go")

	rec := s.apply(t, freelancer, job.ID, true)
	require.Equal(t, http.StatusCreated, rec.Code)
	var applied struct {
		Application domain.Application `json:"application"`
	}
	decode(t, rec, &applied)

	at := time.Date(2026, 11, 2, 15, 0, 0, 0, time.UTC)
	rec = s.do(t, http.MethodPost, "/schedule-interview/"+applied.Application.ID, client.Token, gin.H{
		"dateTime":    at,
		"message":     "bring laptop",
		"scheduleNow": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result application.ScheduleResult
	decode(t, rec, &result)
	require.NotNil(t, result.Interview)
	assert.Equal(t, domain.InterviewScheduled, result.Interview.Status)
	assert.Equal(t, domain.ApplicationAccepted, result.Application.Status)
	require.NotNil(t, result.Application.InterviewDateTime)
	assert.True(t, at.Equal(*result.Application.InterviewDateTime))

	rec = s.do(t, http.MethodGet, "/interviews", freelancer.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bring laptop")
}

func TestJobAlertOverHTTP(t *testing.T) {
	s := newTestServer(t, true)
	client := s.signup(t, "acme", domain.RoleClient)
	freelancer := s.signup(t, "dev", domain.RoleFreelancer)

	rec := s.do(t, http.MethodPost, "/alert-preferences", freelancer.Token, gin.H{
		"enabled": true,
		"skills":  []string{"go", "rust", " Go "},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var user domain.User
	decode(t, rec, &user)
	assert.Equal(t, []string{"go", "rust"}, user.AlertPreferences.Skills)

	s.createJob(t, client, "Go developer", "Go", "Kubernetes")
	s.createJob(t, client, "Go Developer", "Go")

	rec = s.do(t, http.MethodGet, "/get-notifications", freelancer.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var inbox struct {
		Notifications []domain.Notification `json:"notifications"`
	}
	decode(t, rec, &inbox)
	require.Len(t, inbox.Notifications, 1)
	assert.Equal(t, domain.NotificationJobAlert, inbox.Notifications[0].Type)
}

func TestSavedJobsAndRatings(t *testing.T) {
	s := newTestServer(t, true)
	client := s.signup(t, "acme", domain.RoleClient)
	freelancer := s.signup(t, "dev", domain.RoleFreelancer)
	job := s.createJob(t, client, "Go developer", "Go")

	rec := s.do(t, http.MethodPost, "/save-job/"+job.ID, freelancer.Token, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = s.do(t, http.MethodPost, "/save-job/"+job.ID, freelancer.Token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = s.do(t, http.MethodGet, "/saved-jobs", freelancer.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), job.ID)
	rec = s.do(t, http.MethodDelete, "/unsave-job/"+job.ID, freelancer.Token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodPost, "/rate-client/"+client.User.ID, freelancer.Token, gin.H{"score": 6})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodPost, "/rate-client/"+client.User.ID, freelancer.Token, gin.H{"score": 4, "comment": "clear brief"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/client-rating/"+client.User.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary domain.ClientRating
	decode(t, rec, &summary)
	assert.Equal(t, 1, summary.Count)
	assert.InDelta(t, 4.0, summary.Average, 0.001)
}

type fakeCounter struct {
	counts map[string]int64
}

func (f *fakeCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.counts[key]++
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(f.counts[key])
	return cmd
}

func (f *fakeCounter) Expire(ctx context.Context, _ string, _ time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

func TestLoginLimiter(t *testing.T) {
	limiter := newLoginLimiter(&fakeCounter{counts: map[string]int64{}}, 2)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "10.0.0.1", "A@example.com", now))
	assert.True(t, limiter.Allow(ctx, "10.0.0.1", "a@example.com", now))
	assert.False(t, limiter.Allow(ctx, "10.0.0.1", "a@example.com", now))
	assert.True(t, limiter.Allow(ctx, "10.0.0.1", "a@example.com", now.Add(time.Hour)))

	var disabled *loginLimiter
	assert.True(t, disabled.Allow(ctx, "10.0.0.1", "a@example.com", now))
}

func TestRespondErrorHidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	respondError(c, discardLogger(), errors.New("connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}

func TestRespondErrorMapsStorageErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	respondError(c, discardLogger(), storage.ErrInfected)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "malicious file detected")
}

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) realtime.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev realtime.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestWebSocketDeliversNotifications(t *testing.T) {
	s := newTestServer(t, true)
	acct := s.signup(t, "dev", domain.RoleFreelancer)
	server := httptest.NewServer(s.router)
	defer server.Close()

	conn := dialWS(t, server)
	require.NoError(t, conn.WriteJSON(gin.H{
		"event": "authenticate",
		"data":  gin.H{"userId": acct.User.ID, "token": acct.Token},
	}))
	ev := readEvent(t, conn)
	require.Equal(t, realtime.EventAuthenticated, ev.Name)

	require.Eventually(t, func() bool { return s.hub.Connected(acct.User.ID) == 1 }, time.Second, 10*time.Millisecond)

	_, err := s.notifications.Send(context.Background(), domain.Notification{
		UserID:  acct.User.ID,
		Type:    domain.NotificationStatusUpdate,
		Message: "hello",
	})
	require.NoError(t, err)

	ev = readEvent(t, conn)
	assert.Equal(t, realtime.EventNotification, ev.Name)
	assert.Contains(t, string(ev.Data), "hello")
}

func TestWebSocketChat(t *testing.T) {
	s := newTestServer(t, true)
	alice := s.signup(t, "alice", domain.RoleClient)
	bob := s.signup(t, "bob", domain.RoleFreelancer)
	server := httptest.NewServer(s.router)
	defer server.Close()

	connect := func(acct account) *websocket.Conn {
		conn := dialWS(t, server)
		require.NoError(t, conn.WriteJSON(gin.H{
			"event": "authenticate",
			"data":  gin.H{"userId": acct.User.ID, "token": acct.Token},
		}))
		require.Equal(t, realtime.EventAuthenticated, readEvent(t, conn).Name)
		return conn
	}
	aliceConn := connect(alice)
	bobConn := connect(bob)
	require.Eventually(t, func() bool {
		return s.hub.Connected(alice.User.ID) == 1 && s.hub.Connected(bob.User.ID) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, aliceConn.WriteJSON(gin.H{
		"event": "send_message",
		"data":  gin.H{"receiverId": bob.User.ID, "content": "hi bob"},
	}))
	assert.Equal(t, realtime.EventMessageSent, readEvent(t, aliceConn).Name)
	received := readEvent(t, bobConn)
	assert.Equal(t, realtime.EventReceiveMessage, received.Name)
	assert.Contains(t, string(received.Data), "hi bob")

	require.NoError(t, aliceConn.WriteJSON(gin.H{
		"event": "send_message",
		"data":  gin.H{"receiverId": alice.User.ID, "content": "note to self"},
	}))
	failed := readEvent(t, aliceConn)
	assert.Equal(t, realtime.EventError, failed.Name)
	assert.Contains(t, string(failed.Data), "VALIDATION")

	require.NoError(t, bobConn.WriteJSON(gin.H{"event": "typing", "data": gin.H{"receiverId": alice.User.ID}}))
	typing := readEvent(t, aliceConn)
	assert.Equal(t, realtime.EventUserTyping, typing.Name)
	assert.JSONEq(t, `{"userId":"`+bob.User.ID+`"}`, string(typing.Data))
}

func TestWebSocketHandlesEventsRightAfterAuthenticate(t *testing.T) {
	s := newTestServer(t, true)
	alice := s.signup(t, "alice", domain.RoleClient)
	bob := s.signup(t, "bob", domain.RoleFreelancer)
	server := httptest.NewServer(s.router)
	defer server.Close()

	for i := 0; i < 20; i++ {
		conn := dialWS(t, server)
		require.NoError(t, conn.WriteJSON(gin.H{
			"event": "authenticate",
			"data":  gin.H{"userId": alice.User.ID, "token": alice.Token},
		}))
		require.NoError(t, conn.WriteJSON(gin.H{
			"event": "send_message",
			"data":  gin.H{"receiverId": bob.User.ID, "content": "pipelined"},
		}))

		assert.Equal(t, realtime.EventAuthenticated, readEvent(t, conn).Name)
		sent := readEvent(t, conn)
		assert.Equal(t, realtime.EventMessageSent, sent.Name)
		assert.Contains(t, string(sent.Data), "pipelined")
		require.NoError(t, conn.Close())
	}

	history, err := s.store.Messages.Between(context.Background(), alice.User.ID, bob.User.ID)
	require.NoError(t, err)
	assert.Len(t, history, 20)
}

func TestWebSocketRejectsMismatchedToken(t *testing.T) {
	s := newTestServer(t, true)
	alice := s.signup(t, "alice", domain.RoleClient)
	bob := s.signup(t, "bob", domain.RoleFreelancer)
	server := httptest.NewServer(s.router)
	defer server.Close()

	conn := dialWS(t, server)
	require.NoError(t, conn.WriteJSON(gin.H{
		"event": "authenticate",
		"data":  gin.H{"userId": bob.User.ID, "token": alice.Token},
	}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, 0, s.hub.Connected(bob.User.ID))
}

func TestWebSocketTrustsUserIDWhenTokenOptional(t *testing.T) {
	s := newTestServer(t, false)
	acct := s.signup(t, "dev", domain.RoleFreelancer)
	server := httptest.NewServer(s.router)
	defer server.Close()

	conn := dialWS(t, server)
	require.NoError(t, conn.WriteJSON(gin.H{"event": "authenticate", "data": gin.H{"userId": acct.User.ID}}))
	assert.Equal(t, realtime.EventAuthenticated, readEvent(t, conn).Name)
}
