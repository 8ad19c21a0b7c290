package routes

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techzone/intervention-manager/models"
	"github.com/techzone/intervention-manager/services"
	"github.com/techzone/intervention-manager/sessions"
	"github.com/techzone/intervention-manager/testutil"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

type server struct {
	t        *testing.T
	db       *gorm.DB
	router   *gin.Engine
	sessions *sessions.Manager
}

func newServer(t *testing.T) *server {
	t.Helper()

	db := testutil.NewTestDB(t)
	manager := testutil.NewSessionManager(db)
	images, err := services.NewLocalImageService(t.TempDir())
	require.NoError(t, err)
	auth, err := services.NewAuthService(db, bcrypt.MinCost)
	require.NoError(t, err)

	router, err := New(Deps{
		DB:            db,
		Sessions:      manager,
		Auth:          auth,
		Interventions: services.NewInterventionService(db, images),
		Directory:     services.NewDirectoryService(db, bcrypt.MinCost),
		Dashboard:     services.NewDashboardService(db),
		UploadDir:     images.Dir(),
	})
	require.NoError(t, err)

	return &server{t: t, db: db, router: router, sessions: manager}
}

func (s *server) do(req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *server) get(path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, path, nil), cookie)
}

func (s *server) post(path string, cookie *http.Cookie, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req, cookie)
}

// login signs in through the form and returns the session cookie
func (s *server) login(email string) *http.Cookie {
	s.t.Helper()

	w := s.post("/auth/login", nil, url.Values{"email": {email}, "password": {testutil.TestPassword}})
	require.Equal(s.t, http.StatusFound, w.Code, w.Body.String())
	for _, c := range w.Result().Cookies() {
		if c.Name == s.sessions.CookieName() {
			return c
		}
	}
	s.t.Fatalf("login for %s did not set a session cookie", email)
	return nil
}

func TestInterventionLifecycle(t *testing.T) {
	s := newServer(t)
	admin := testutil.CreateAdmin(t, s.db)
	jean := testutil.CreateTechnician(t, s.db, "Jean Tech")
	marie := testutil.CreateTechnician(t, s.db, "Marie Tech")

	adminCookie := s.login(admin.Email)

	w := s.post("/admin/clients", adminCookie, url.Values{"name": {"Acme"}, "address": {"1 rue de la Paix"}})
	require.Equal(t, http.StatusFound, w.Code)
	var acme models.Client
	require.NoError(t, s.db.Where("name = ?", "Acme").First(&acme).Error)

	w = s.post("/admin/interventions", adminCookie, url.Values{
		"title":         {"Fix printer"},
		"description":   {"Paper jam on floor 2"},
		"client_id":     {fmt.Sprint(acme.ID)},
		"priority":      {"high"},
		"technician_id": {fmt.Sprint(jean.ID)},
	})
	require.Equal(t, http.StatusFound, w.Code)
	var printer models.Intervention
	require.NoError(t, s.db.Where("title = ?", "Fix printer").First(&printer).Error)
	path := fmt.Sprintf("/technicien/interventions/%d", printer.ID)

	jeanCookie := s.login(jean.Email)
	marieCookie := s.login(marie.Email)

	w = s.get("/technicien/dashboard", jeanCookie)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Fix printer")

	w = s.get(path, marieCookie)
	assert.Equal(t, http.StatusNotFound, w.Code, "other technicians cannot see it")
	w = s.post(path+"/commencer", marieCookie, url.Values{})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.post(path+"/commencer", jeanCookie, url.Values{})
	assert.Equal(t, http.StatusFound, w.Code)

	body, contentType := testutil.MultipartFile(t, "photo", "printer.png", testutil.PNG)
	req := httptest.NewRequest(http.MethodPost, path+"/photo", body)
	req.Header.Set("Content-Type", contentType)
	w = s.do(req, jeanCookie)
	assert.Equal(t, http.StatusFound, w.Code)

	photo := testutil.LoadIntervention(t, s.db, printer.ID).PhotoKey
	require.NotNil(t, photo)
	assert.Equal(t, http.StatusOK, s.get("/uploads/"+*photo, jeanCookie).Code)
	assert.Equal(t, http.StatusFound, s.get("/uploads/"+*photo, nil).Code, "photos need a session")

	w = s.post(path+"/terminer", jeanCookie, url.Values{"work_performed": {"Cleared the jam"}})
	assert.Equal(t, http.StatusFound, w.Code)

	// Cancelling a finished intervention changes nothing
	w = s.post(fmt.Sprintf("/admin/interventions/%d/annuler", printer.ID), adminCookie, url.Values{})
	assert.Equal(t, http.StatusFound, w.Code)
	done := testutil.LoadIntervention(t, s.db, printer.ID)
	assert.Equal(t, models.StatusDone, done.Status)
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.FinishedAt)

	dashboard, err := services.NewDashboardService(s.db).Admin(t.Context(), services.ActorFromUser(admin))
	require.NoError(t, err)
	assert.Equal(t, services.StatusCounts{Total: 1, Done: 1}, dashboard.Counts)

	w = s.get("/admin/dashboard", adminCookie)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Fix printer")
}

func TestRoleGates(t *testing.T) {
	s := newServer(t)
	admin := testutil.CreateAdmin(t, s.db)
	jean := testutil.CreateTechnician(t, s.db, "Jean Tech")

	adminCookie := s.login(admin.Email)
	jeanCookie := s.login(jean.Email)

	tests := []struct {
		name         string
		path         string
		cookie       *http.Cookie
		wantStatus   int
		wantLocation string
	}{
		{"anonymous admin page", "/admin/dashboard", nil, http.StatusFound, "/auth/login"},
		{"anonymous technician page", "/technicien/dashboard", nil, http.StatusFound, "/auth/login"},
		{"technician on admin page", "/admin/dashboard", jeanCookie, http.StatusForbidden, ""},
		{"admin on technician page", "/technicien/dashboard", adminCookie, http.StatusForbidden, ""},
		{"home redirects admin", "/", adminCookie, http.StatusFound, "/admin/dashboard"},
		{"home redirects technician", "/", jeanCookie, http.StatusFound, "/technicien/dashboard"},
		{"home redirects anonymous", "/", nil, http.StatusFound, "/auth/login"},
		{"login page", "/auth/login", nil, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.get(tt.path, tt.cookie)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, w.Header().Get("Location"))
			}
		})
	}

	w := s.get("/auth/logout", jeanCookie)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, http.StatusFound, s.get("/technicien/dashboard", jeanCookie).Code, "logged out session is gone")
}

func TestOperationalEndpoints(t *testing.T) {
	s := newServer(t)

	w := s.get("/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Intervention manager is running")

	w = s.get("/health/database", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "interventions")

	// Generate a sample so the counter is exported
	s.get("/auth/login", nil)
	w = s.get("/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "interventions_http_requests_total")

	w = s.get("/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "does not exist")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestNewRequiresCoreDeps(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}
