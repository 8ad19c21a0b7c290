// Package testutil holds fixtures shared by the package tests: an in-memory
// database, seeded records and logged-in session cookies.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/techzone/intervention-manager/models"
	"github.com/techzone/intervention-manager/sessions"
	"github.com/techzone/intervention-manager/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestPassword is the plaintext password of every user created by this package
const TestPassword = "password123"

// SessionSecret signs the cookies produced by NewSessionManager
const SessionSecret = "test-session-secret"

// NewTestDB opens a migrated in-memory SQLite database that lives as long as the test
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// A second connection would see a different, empty :memory: database
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get database instance: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db
}

// CreateUser inserts an active user with TestPassword
func CreateUser(t *testing.T, db *gorm.DB, name, email, role string) *models.User {
	t.Helper()

	hash, err := utils.HashPassword(TestPassword, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create user %s: %v", email, err)
	}
	return user
}

// CreateAdmin inserts an active admin
func CreateAdmin(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	return CreateUser(t, db, "Admin User", "admin@example.com", models.RoleAdmin)
}

// CreateTechnician inserts an active technician whose email derives from name
func CreateTechnician(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	return CreateUser(t, db, name, fmt.Sprintf("%s@example.com", slug(name)), models.RoleTechnician)
}

// Deactivate clears the active flag of user
func Deactivate(t *testing.T, db *gorm.DB, user *models.User) {
	t.Helper()
	// Update with a column name; a struct update would skip the false zero value
	if err := db.Model(user).Update("active", false).Error; err != nil {
		t.Fatalf("Failed to deactivate user: %v", err)
	}
	user.Active = false
}

// CreateClient inserts a client with only a name
func CreateClient(t *testing.T, db *gorm.DB, name string) *models.Client {
	t.Helper()
	client := &models.Client{Name: name}
	if err := db.Create(client).Error; err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

// CreateIntervention inserts an intervention in the given state
func CreateIntervention(t *testing.T, db *gorm.DB, title string, clientID uint, technicianID *uint, status string) *models.Intervention {
	t.Helper()
	intervention := &models.Intervention{
		Title:        title,
		Description:  "Description of " + title,
		Status:       status,
		Priority:     models.PriorityNormal,
		ClientID:     clientID,
		TechnicianID: technicianID,
	}
	if err := db.Omit("Client", "Technician").Create(intervention).Error; err != nil {
		t.Fatalf("Failed to create intervention: %v", err)
	}
	return intervention
}

// LoadIntervention re-reads an intervention straight from the database
func LoadIntervention(t *testing.T, db *gorm.DB, id uint) *models.Intervention {
	t.Helper()
	var intervention models.Intervention
	if err := db.First(&intervention, id).Error; err != nil {
		t.Fatalf("Failed to load intervention %d: %v", id, err)
	}
	return &intervention
}

// NewSessionManager returns a database-backed session manager signed with SessionSecret
func NewSessionManager(db *gorm.DB) *sessions.Manager {
	return sessions.NewManager(sessions.NewGormStore(db), sessions.Options{
		Secret: []byte(SessionSecret),
		TTL:    24 * time.Hour,
	})
}

// LoginCookie opens a session for user and returns the cookie a browser would send back
func LoginCookie(t *testing.T, m *sessions.Manager, user *models.User) *http.Cookie {
	t.Helper()

	w := httptest.NewRecorder()
	_, err := m.Create(context.Background(), w, nil, sessions.Data{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	for _, c := range w.Result().Cookies() {
		if c.Name == m.CookieName() {
			return c
		}
	}
	t.Fatalf("Session cookie was not set")
	return nil
}

// PNG is the smallest content that passes the upload signature check
var PNG = append([]byte("\x89PNG\r\n\x1a\n"), []byte("test image body")...)

// MultipartFile builds a multipart body holding one file under field. It
// returns the body and its Content-Type header value.
func MultipartFile(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("Failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

// FileHeader returns the parsed header of a single uploaded file
func FileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()

	body, contentType := MultipartFile(t, "photo", filename, content)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", contentType)
	if err := req.ParseMultipartForm(int64(len(content)) + 1024); err != nil {
		t.Fatalf("Failed to parse multipart form: %v", err)
	}
	return req.MultipartForm.File["photo"][0]
}

// UintPtr returns a pointer to v
func UintPtr(v uint) *uint {
	return &v
}

func slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", ".")
}
