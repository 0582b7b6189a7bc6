package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"residence/internal/http/middleware"
	"residence/internal/repo"
	"residence/internal/service"
)

var now = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type api struct {
	t      *testing.T
	engine *gin.Engine
	store  *repo.Store
}

func newAPI(t *testing.T, limiter *middleware.RateLimiter) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := repo.NewMemoryStore(nil)
	auth := service.NewAuthService(s.Users, s.Sessions, []byte("secret"), time.Hour)
	require.NoError(t, auth.EnsureAdmin(context.Background(), "admin@example.com", "admin-password"))

	engine, err := New(Deps{
		Auth: auth,
		Reservations: service.NewReservationService(s.Facilities, s.Households, s.Reservations, nil, nil,
			service.WithClock(func() time.Time { return now })),
		Facilities: service.NewFacilityService(s.Facilities, s.Households, s.Users),
		Calendar:   service.NewCalendarService(s.Facilities, s.Reservations),
		Limiter:    limiter,
	})
	require.NoError(t, err)
	return &api{t: t, engine: engine, store: s}
}

func (a *api) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (a *api) login(email, password string) string {
	a.t.Helper()
	w := a.do(http.MethodPost, "/login", gin.H{"email": email, "password": password}, "")
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	return decode(a.t, w)["accessToken"].(string)
}

func (a *api) register(email string) (id, token string) {
	a.t.Helper()
	w := a.do(http.MethodPost, "/register", gin.H{"email": email, "password": "resident-pw", "name": "R"}, "")
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	return decode(a.t, w)["id"].(string), a.login(email, "resident-pw")
}

// world is a building with one exclusive room and a resident household.
type world struct {
	*api
	admin, resident string
	residentID      string
	room, household string
}

func newWorld(t *testing.T) *world {
	w := &world{api: newAPI(t, middleware.NewRateLimiter(1000, 1000))}
	w.admin = w.login("admin@example.com", "admin-password")
	w.residentID, w.resident = w.register("resident@example.com")

	res := w.do(http.MethodPost, "/admin/facilities", gin.H{
		"buildingId": "b1",
		"name":       "Meeting Room",
		"operatingHours": []gin.H{
			{"day": 5, "openTime": "09:00", "closeTime": "18:00"},
			{"day": 0, "isClosed": true},
		},
	}, w.admin)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	w.room = decode(t, res)["id"].(string)

	res = w.do(http.MethodPost, "/admin/households", gin.H{"buildingId": "b1", "name": "Lee", "apartment": "12A"}, w.admin)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	w.household = decode(t, res)["id"].(string)

	res = w.do(http.MethodPost, "/admin/households/"+w.household+"/members", gin.H{"userId": w.residentID}, w.admin)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	return w
}

func (w *world) reserve(start, end string) *httptest.ResponseRecorder {
	return w.do(http.MethodPost, "/facilities/"+w.room+"/reservations", gin.H{
		"householdId":    w.household,
		"startTime":      start,
		"endTime":        end,
		"timezoneOffset": 0,
		"notes":          "quiet please",
	}, w.resident)
}

func TestReservationResponses(t *testing.T) {
	w := newWorld(t)

	res := w.reserve("2025-01-10T09:00:00Z", "2025-01-10T10:00:00Z")
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	body := decode(t, res)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["autoApproved"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "approved", data["status"])
	assert.Len(t, data["accessCode"], 8)
	firstID := data["id"].(string)

	res = w.reserve("2025-01-10T09:30:00Z", "2025-01-10T10:30:00Z")
	require.Equal(t, http.StatusConflict, res.Code, res.Body.String())
	body = decode(t, res)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "TIME_OCCUPIED", body["errorCode"])
	assert.Equal(t, true, body["allowFrontDeskMessage"])
	assert.NotContains(t, body, "nextAvailable")
	conflict := body["conflict"].(map[string]any)
	refs := conflict["reservations"].([]any)
	require.Len(t, refs, 1)
	assert.Equal(t, firstID, refs[0].(map[string]any)["reservationId"])
	rejected := body["reservation"].(map[string]any)
	assert.Equal(t, "rejected", rejected["status"])
	assert.Contains(t, rejected["notes"], "quiet please\n[Auto-rejected] ")

	res = w.reserve("2025-01-10T07:00:00Z", "2025-01-10T08:00:00Z")
	require.Equal(t, http.StatusBadRequest, res.Code)
	body = decode(t, res)
	assert.Equal(t, "OUTSIDE_OPERATING_HOURS", body["errorCode"])
	assert.Contains(t, body["details"], "09:00 - 18:00")

	res = w.reserve("2025-01-12T10:00:00Z", "2025-01-12T11:00:00Z")
	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "CLOSED_DAY", decode(t, res)["errorCode"])

	res = w.reserve("2025-01-10T11:00:00Z", "2025-01-10T10:00:00Z")
	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, res)["errorCode"])
}

func TestReservationAccess(t *testing.T) {
	w := newWorld(t)
	res := w.reserve("2025-01-10T09:00:00Z", "2025-01-10T10:00:00Z")
	require.Equal(t, http.StatusCreated, res.Code)
	id := decode(t, res)["data"].(map[string]any)["id"].(string)

	_, stranger := w.register("stranger@example.com")
	res = w.do(http.MethodPost, "/facilities/"+w.room+"/reservations", gin.H{
		"householdId": w.household,
		"startTime":   "2025-01-10T12:00:00Z",
		"endTime":     "2025-01-10T13:00:00Z",
	}, stranger)
	require.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "MEMBERSHIP_ERROR", decode(t, res)["errorCode"])

	assert.Equal(t, http.StatusOK, w.do(http.MethodGet, "/reservations/"+id, nil, w.resident).Code)
	assert.Equal(t, http.StatusOK, w.do(http.MethodGet, "/reservations/"+id, nil, w.admin).Code)
	assert.Equal(t, http.StatusForbidden, w.do(http.MethodGet, "/reservations/"+id, nil, stranger).Code)
	assert.Equal(t, http.StatusUnauthorized, w.do(http.MethodGet, "/reservations/"+id, nil, "").Code)
	assert.Equal(t, http.StatusNotFound, w.do(http.MethodGet, "/reservations/nope", nil, w.resident).Code)

	png := w.do(http.MethodGet, "/reservations/"+id+"/access-code.png", nil, w.resident)
	require.Equal(t, http.StatusOK, png.Code)
	assert.Equal(t, "image/png", png.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(png.Body.Bytes(), []byte("\x89PNG")))
}

func TestCalendarAndAvailability(t *testing.T) {
	w := newWorld(t)
	require.Equal(t, http.StatusCreated, w.reserve("2025-01-10T09:00:00Z", "2025-01-10T10:00:00Z").Code)

	res := w.do(http.MethodGet, "/facilities/"+w.room+"/reservations?from=2025-01-10T00:00:00Z&to=2025-01-11T00:00:00Z", nil, w.resident)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var list []map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	res = w.do(http.MethodGet, "/facilities/"+w.room+"/reservations?from=yesterday", nil, w.resident)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = w.do(http.MethodGet, "/availability?buildingId=b1&start=2025-01-10T09:30:00Z&end=2025-01-10T10:30:00Z", nil, w.resident)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.JSONEq(t, "[]", res.Body.String())

	res = w.do(http.MethodGet, "/availability?buildingId=b1&start=2025-01-10T10:00:00Z&end=2025-01-10T11:00:00Z", nil, w.resident)
	require.Equal(t, http.StatusOK, res.Code)
	var avail []map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &avail))
	require.Len(t, avail, 1)
	assert.Equal(t, w.room, avail[0]["facility"].(map[string]any)["id"])
}

func TestAdminRoutes(t *testing.T) {
	w := newWorld(t)

	res := w.do(http.MethodPost, "/admin/facilities", gin.H{"buildingId": "b1", "name": "Gym"}, w.resident)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = w.do(http.MethodPost, "/admin/facilities", gin.H{
		"buildingId":     "b1",
		"name":           "Gym",
		"capacity":       10,
		"operatingHours": []gin.H{{"day": 1, "openTime": "9am", "closeTime": "18:00"}},
	}, w.admin)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = w.do(http.MethodPut, "/admin/facilities/"+w.room+"/hours", gin.H{
		"operatingHours": []gin.H{{"day": 9, "openTime": "09:00", "closeTime": "18:00"}},
	}, w.admin)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = w.do(http.MethodPut, "/admin/facilities/"+w.room+"/hours", gin.H{
		"operatingHours": []gin.H{{"day": 5, "openTime": "06:00", "closeTime": "24:00"}},
	}, w.admin)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, http.StatusCreated, w.reserve("2025-01-10T07:00:00Z", "2025-01-10T08:00:00Z").Code)

	res = w.do(http.MethodPut, "/admin/facilities/missing/hours", gin.H{"operatingHours": []gin.H{}}, w.admin)
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = w.do(http.MethodGet, "/admin/facilities?buildingId=b1", nil, w.admin)
	require.Equal(t, http.StatusOK, res.Code)
	var fs []map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &fs))
	assert.Len(t, fs, 1)
}

func TestSessionCookieAndLogout(t *testing.T) {
	a := newAPI(t, nil)
	w := a.do(http.MethodPost, "/login", gin.H{"email": "admin@example.com", "password": "admin-password"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	me := func() int {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(cookies[0])
		rec := httptest.NewRecorder()
		a.engine.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, me())

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(cookies[0])
	a.engine.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, http.StatusUnauthorized, me())

	bad := a.do(http.MethodPost, "/login", gin.H{"email": "admin@example.com", "password": "nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, bad.Code)
}

func TestReservationRateLimit(t *testing.T) {
	a := newAPI(t, middleware.NewRateLimiter(0.001, 1))
	token := a.login("admin@example.com", "admin-password")
	path := "/facilities/any/reservations"

	first := a.do(http.MethodPost, path, gin.H{}, token)
	assert.Equal(t, http.StatusBadRequest, first.Code)
	second := a.do(http.MethodPost, path, gin.H{}, token)
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "RATE_LIMITED", decode(t, second)["errorCode"])
}
