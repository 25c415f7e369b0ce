package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-health-api/internal/models"
	appErrors "github.com/noah-isme/sma-health-api/pkg/errors"
)

type tokenStub map[string]*models.JWTClaims

func (s tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type auditStub struct {
	logs []*models.AuditLog
	err  error
}

func (a *auditStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return a.err
}

type observerStub struct {
	paths    []string
	statuses []int
}

func (o *observerStub) ObserveHTTPRequest(_, path string, status int, _ time.Duration) {
	o.paths = append(o.paths, path)
	o.statuses = append(o.statuses, status)
}

func newRouter(audit *auditStub, observer *observerStub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	tokens := tokenStub{
		"student-token": {UserID: "stu-1", Role: models.RoleStudent},
		"admin-token":   {UserID: "admin-1", Role: models.RoleAdmin},
		"super-token":   {UserID: "root", Role: models.RoleSuperAdmin},
	}
	r := gin.New()
	r.Use(Metrics(observer))
	api := r.Group("/api", JWT(tokens))
	api.GET("/me", func(c *gin.Context) {
		actor, _ := CurrentActor(c)
		c.String(http.StatusOK, actor.ID)
	})
	api.PATCH("/reports/:id/status", RequireAdmin(), Audit(audit, nil, models.AuditActionReportTransition, "health_report", "id"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	api.POST("/fail", RequireAdmin(), Audit(audit, nil, models.AuditActionActionCreate, "suggested_action", ""), func(c *gin.Context) {
		c.Status(http.StatusConflict)
	})
	return r
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestJWTAndRoles(t *testing.T) {
	audit := &auditStub{}
	r := newRouter(audit, &observerStub{})

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/me", "forged").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Token student-token")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(r, http.MethodGet, "/api/me", "student-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stu-1", rec.Body.String())

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPatch, "/api/reports/r1/status", "student-token").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPatch, "/api/reports/r1/status", "admin-token").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPatch, "/api/reports/r2/status", "super-token").Code)
	assert.Len(t, audit.logs, 2)
}

func TestAuditRecordsSuccessfulRequestsOnly(t *testing.T) {
	audit := &auditStub{}
	r := newRouter(audit, &observerStub{})

	do(r, http.MethodPatch, "/api/reports/r1/status", "admin-token")
	do(r, http.MethodPost, "/api/fail", "admin-token")

	require.Len(t, audit.logs, 1)
	log := audit.logs[0]
	assert.Equal(t, models.AuditActionReportTransition, log.Action)
	assert.Equal(t, "health_report", log.Resource)
	require.NotNil(t, log.ResourceID)
	assert.Equal(t, "r1", *log.ResourceID)
	require.NotNil(t, log.UserID)
	assert.Equal(t, "admin-1", *log.UserID)
	assert.Contains(t, string(log.NewValues), `"status":200`)

	audit.err = errors.New("disk full")
	assert.Equal(t, http.StatusOK, do(r, http.MethodPatch, "/api/reports/r1/status", "admin-token").Code)
}

func TestMetricsGroupsUnmatchedRoutes(t *testing.T) {
	observer := &observerStub{}
	r := newRouter(&auditStub{}, observer)

	do(r, http.MethodGet, "/api/me", "student-token")
	do(r, http.MethodGet, "/wp-login.php", "")

	assert.Equal(t, []string{"/api/me", "unmatched"}, observer.paths)
	assert.Equal(t, []int{http.StatusOK, http.StatusNotFound}, observer.statuses)
}

func TestSetCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	SetCacheHit(c, true)
	assert.Equal(t, "HIT", rec.Header().Get(CacheHeader))
	SetCacheHit(c, false)
	assert.Equal(t, "MISS", rec.Header().Get(CacheHeader))
}
