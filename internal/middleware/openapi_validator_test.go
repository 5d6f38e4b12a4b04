package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitedash/internal/domain"
	"sitedash/internal/testutil"
)

func TestSessionAPISpecIsValid(t *testing.T) {
	doc, err := LoadSessionAPISpec(nil)
	require.NoError(t, err)
	assert.Equal(t, "Sitedash Session API", doc.Info.Title)
}

func TestAllSessionRoutesAreDocumented(t *testing.T) {
	doc, err := LoadSessionAPISpec(nil)
	require.NoError(t, err)

	routes := []struct {
		method string
		path   string
	}{
		{"GET", "/session"},
		{"POST", "/session/login"},
		{"POST", "/session/register"},
		{"POST", "/session/logout"},
		{"POST", "/session/profile"},
		{"POST", "/session/company"},
		{"GET", "/session/plans"},
		{"POST", "/session/plan"},
		{"POST", "/session/plan/skip"},
		{"PUT", "/session/step"},
		{"GET", "/session/oauth/{provider}"},
		{"POST", "/session/oauth/{provider}/callback"},
		{"POST", "/session/social-onboarding"},
		{"GET", "/session/events"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			item := doc.Paths.Find(route.path)
			require.NotNil(t, item, "path not documented: %s", route.path)
			op := item.GetOperation(route.method)
			require.NotNil(t, op, "operation not documented: %s %s", route.method, route.path)
			assert.NotEmpty(t, op.OperationID)
			assert.NotEmpty(t, op.Tags)
		})
	}
}

func validatedHandler(t *testing.T) (http.Handler, *bool) {
	t.Helper()
	called := new(bool)
	h := OpenAPIValidator(DefaultOpenAPIValidatorConfig(true))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}))
	return h, called
}

func TestOpenAPIValidator_AcceptsValidRequest(t *testing.T) {
	h, called := validatedHandler(t)
	req := testutil.NewJSONRequest(t, http.MethodPost, "http://localhost/session/login", map[string]string{
		"email":    "jane@buildco.test",
		"password": "secret123",
	})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	testutil.AssertStatusCode(t, w, http.StatusOK)
	assert.True(t, *called)
}

func TestOpenAPIValidator_MissingFieldIsValidationError(t *testing.T) {
	h, called := validatedHandler(t)
	req := testutil.NewJSONRequest(t, http.MethodPost, "http://localhost/session/login", map[string]string{
		"email": "jane@buildco.test",
	})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	apiErr := testutil.AssertJSONError(t, w, http.StatusUnprocessableEntity, "invalid")
	assert.Equal(t, domain.KindValidation, apiErr.Kind)
	assert.Contains(t, apiErr.FieldErrors, "password")
	assert.False(t, *called)
}

func TestOpenAPIValidator_WrongTypeIsValidationError(t *testing.T) {
	h, _ := validatedHandler(t)
	req := testutil.NewJSONRequest(t, http.MethodPut, "http://localhost/session/step", map[string]int{"step": 3})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	apiErr := testutil.AssertJSONError(t, w, http.StatusUnprocessableEntity, "invalid")
	assert.Contains(t, apiErr.FieldErrors, "step")
}

func TestOpenAPIValidator_MalformedBodyIsBadRequest(t *testing.T) {
	h, _ := validatedHandler(t)
	req := httptest.NewRequest(http.MethodPost, "http://localhost/session/plan", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	testutil.AssertStatusCode(t, w, http.StatusBadRequest)
}

func TestOpenAPIValidator_SkipsOtherPaths(t *testing.T) {
	h, called := validatedHandler(t)
	for _, p := range []string{"/health", "/api/projects", "/dashboard"} {
		*called = false
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "http://localhost"+p, strings.NewReader("garbage")))
		testutil.AssertStatusCode(t, w, http.StatusOK)
		assert.True(t, *called, p)
	}
}

func TestOpenAPIValidator_UnknownSessionRoutePassesToRouter(t *testing.T) {
	h, called := validatedHandler(t)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "http://localhost/session/unknown", nil))
	assert.True(t, *called)
}

func TestOpenAPIValidator_Disabled(t *testing.T) {
	called := false
	h := OpenAPIValidator(DefaultOpenAPIValidatorConfig(false))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/session/login", strings.NewReader("{}")))
	assert.True(t, called)
}

func TestOpenAPIValidator_InvalidSpecFallsBackToNoop(t *testing.T) {
	cfg := DefaultOpenAPIValidatorConfig(true)
	cfg.Spec = []byte("openapi: [broken")
	called := false
	h := OpenAPIValidator(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/session/login", nil))
	assert.True(t, called)
}
