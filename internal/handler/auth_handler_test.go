package handler

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tlu-support/internal/models"
	"tlu-support/internal/services"
)

func registerStudent(t *testing.T, app *testApp) services.LoginResult {
	t.Helper()
	w := app.do(t, http.MethodPost, "/api/v1/auth/register", "", jsonBody{
		"email":        "an@uni.test",
		"password":     "secret1",
		"full_name":    "Nguyen An",
		"student_code": "2151060001",
		"class_name":   "63CNTT1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = app.do(t, http.MethodPost, "/api/v1/auth/login", "", jsonBody{"email": "an@uni.test", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res services.LoginResult
	decode(t, w, &res)
	return res
}

func TestRegisterLoginLogout(t *testing.T) {
	app := newTestApp(t)
	login := registerStudent(t, app)
	assert.Equal(t, "bearer", login.TokenType)
	assert.Equal(t, models.RoleStudent, login.Role)

	w := app.do(t, http.MethodGet, "/api/v1/auth/validate", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var who map[string]string
	decode(t, w, &who)
	assert.Equal(t, login.UserID, who["user_id"])

	w = app.do(t, http.MethodPost, "/api/v1/auth/logout", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = app.do(t, http.MethodGet, "/api/v1/auth/validate", login.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejections(t *testing.T) {
	app := newTestApp(t)
	registerStudent(t, app)
	student := app.addUser(t, "stu-2", models.RoleStudent)
	admin := app.addUser(t, "adm-1", models.RoleAdmin)

	lecturer := jsonBody{"email": "lec@uni.test", "password": "secret1", "full_name": "Lec"}

	tests := []struct {
		name   string
		path   string
		token  string
		body   jsonBody
		status int
	}{
		{"wrong password", "/api/v1/auth/login", "", jsonBody{"email": "an@uni.test", "password": "nope"}, http.StatusUnauthorized},
		{"invalid email", "/api/v1/auth/login", "", jsonBody{"email": "not-an-email", "password": "x"}, http.StatusBadRequest},
		{"duplicate registration", "/api/v1/auth/register", "", jsonBody{"email": "an@uni.test", "password": "secret1", "full_name": "A", "student_code": "X1"}, http.StatusConflict},
		{"short password", "/api/v1/auth/register", "", jsonBody{"email": "b@uni.test", "password": "123", "full_name": "B", "student_code": "X2"}, http.StatusBadRequest},
		{"student creates lecturer", "/api/v1/auth/create-lecturer", student, lecturer, http.StatusForbidden},
		{"admin creates lecturer", "/api/v1/auth/create-lecturer", admin, lecturer, http.StatusCreated},
		{"forgot unknown email", "/api/v1/auth/forgot-password", "", jsonBody{"email": "ghost@uni.test"}, http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := app.do(t, http.MethodPost, tc.path, tc.token, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}
}

func TestProfileAndRoster(t *testing.T) {
	app := newTestApp(t)
	login := registerStudent(t, app)
	admin := app.addUser(t, "adm-1", models.RoleAdmin)

	w := app.do(t, http.MethodGet, "/api/v1/users/me", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var profile models.StudentProfile
	decode(t, w, &profile)
	assert.Equal(t, "2151060001", profile.StudentCode)

	updateMe := func(fields map[string]string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		for k, v := range fields {
			require.NoError(t, mw.WriteField(k, v))
		}
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPut, "/api/v1/users/me", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+login.AccessToken)
		w := httptest.NewRecorder()
		app.router.ServeHTTP(w, req)
		return w
	}

	w = updateMe(map[string]string{"phone": "call me"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = updateMe(map[string]string{"phone": "+84912345678", "address": "Hanoi"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &profile)
	assert.Equal(t, "+84912345678", profile.Phone)
	assert.Equal(t, "Hanoi", profile.Address)

	w = app.do(t, http.MethodGet, "/api/v1/students?keyword=nguyen", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page models.StudentPage
	decode(t, w, &page)
	assert.EqualValues(t, 1, page.Total)
	assert.Equal(t, services.DefaultRosterSize, page.Size)

	w = app.do(t, http.MethodGet, "/api/v1/students/"+login.UserID, admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = app.do(t, http.MethodGet, "/api/v1/students", login.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = app.do(t, http.MethodGet, "/api/v1/students?status=EXPELLED", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
