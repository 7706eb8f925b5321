package api

import (
	"Neurologix/backend/go/internal/config"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"Neurologix/backend/go/pkg/logger"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

var testAuth = config.AuthConfig{JwtSecret: testSecret, TeamsClaim: "teams", Issuer: "neurologix-auth"}

func init() {
	gin.SetMode(gin.TestMode)
}

type scriptedAnswerer struct {
	chunks   []schema.AnswerChunk
	question string
	scope    schema.UserScope
}

func (s *scriptedAnswerer) Answer(ctx context.Context, question string, scope schema.UserScope) <-chan schema.AnswerChunk {
	s.question, s.scope = question, scope
	out := make(chan schema.AnswerChunk, len(s.chunks))
	for _, c := range s.chunks {
		out <- c
	}
	close(out)
	return out
}

func token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func clinicianToken(t *testing.T) string {
	return token(t, jwt.MapClaims{
		"sub":   "coach-1",
		"iss":   "neurologix-auth",
		"teams": []string{"LSU_TIGERS"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
}

func serve(t *testing.T, h *Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	r := SetupRouter(h, testAuth, logger.Discard())
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func bearer(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

func TestQuery_RejectsMissingOrInvalidToken(t *testing.T) {
	h := NewHandler(&scriptedAnswerer{}, nil)

	rec := serve(t, h, http.MethodPost, "/api/v1/query", `{"question":"q"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(t, h, http.MethodPost, "/api/v1/query", `{"question":"q"}`, bearer("not-a-jwt"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	wrongIssuer := token(t, jwt.MapClaims{"sub": "coach-1", "iss": "someone-else", "teams": []string{"LSU_TIGERS"}})
	rec = serve(t, h, http.MethodPost, "/api/v1/query", `{"question":"q"}`, bearer(wrongIssuer))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestQuery_AggregatesChunks(t *testing.T) {
	answerer := &scriptedAnswerer{chunks: []schema.AnswerChunk{
		{Text: "P001 reported a baseline headache severity of 2 "},
		{Text: "[1]."},
		{IsFinal: true, Citations: []string{"symptom_assessments:S001:2024-08-15"}},
	}}
	h := NewHandler(answerer, nil)

	rec := serve(t, h, http.MethodPost, "/api/v1/query", `{"question":"What was P001's baseline headache?"}`, bearer(clinicianToken(t)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "P001 reported a baseline headache severity of 2 [1].", resp.Answer)
	assert.Equal(t, []string{"symptom_assessments:S001:2024-08-15"}, resp.Citations)
	assert.Nil(t, resp.Error)

	assert.Equal(t, "What was P001's baseline headache?", answerer.question)
	assert.Equal(t, schema.UserScope{UserID: "coach-1", AllowedTeamIDs: []string{"LSU_TIGERS"}}, answerer.scope)
}

func TestQuery_ErrorKindsMapToStatus(t *testing.T) {
	cases := []struct {
		kind   schema.ErrorKind
		status int
	}{
		{schema.ScopeViolation, http.StatusForbidden},
		{schema.ParseFailure, http.StatusBadRequest},
		{schema.StructuredSourceFailure, http.StatusBadGateway},
		{schema.GenerationFailure, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			answerer := &scriptedAnswerer{chunks: []schema.AnswerChunk{
				{IsFinal: true, Error: &schema.ChunkError{Kind: tc.kind, Message: "failed"}},
			}}
			rec := serve(t, NewHandler(answerer, nil), http.MethodPost, "/api/v1/query", `{"question":"q"}`, bearer(clinicianToken(t)))
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"kind":"`+string(tc.kind)+`"`)
		})
	}
}

func TestQuery_TokenWithoutTeamsHasEmptyScope(t *testing.T) {
	answerer := &scriptedAnswerer{chunks: []schema.AnswerChunk{
		{IsFinal: true, Error: &schema.ChunkError{Kind: schema.ScopeViolation, Message: "user scope has no allowed teams"}},
	}}
	tok := token(t, jwt.MapClaims{"sub": "coach-2", "iss": "neurologix-auth"})

	rec := serve(t, NewHandler(answerer, nil), http.MethodPost, "/api/v1/query", `{"question":"q"}`, bearer(tok))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.True(t, answerer.scope.IsEmpty())
}

func TestQuery_BadBody(t *testing.T) {
	answerer := &scriptedAnswerer{}
	rec := serve(t, NewHandler(answerer, nil), http.MethodPost, "/api/v1/query", `{"q":1}`, bearer(clinicianToken(t)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ParseFailure")
	assert.Empty(t, answerer.question)
}

func TestQuery_StreamsServerSentEvents(t *testing.T) {
	answerer := &scriptedAnswerer{chunks: []schema.AnswerChunk{
		{Text: "Average reaction time was 268.13 ms [1]."},
		{IsFinal: true, Citations: []string{"reaction_time_tests:R002:2024-09-20"}},
	}}
	h := NewHandler(answerer, nil)

	header := bearer(clinicianToken(t))
	header["Accept"] = "text/event-stream"
	rec := serve(t, h, http.MethodPost, "/api/v1/query", `{"question":"average reaction time"}`, header)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event:chunk"))
	assert.Contains(t, body, `"is_final":true`)
	assert.Contains(t, body, "268.13")

	rec = serve(t, h, http.MethodPost, "/api/v1/query?stream=true", `{"question":"average reaction time"}`, bearer(clinicianToken(t)))
	assert.Equal(t, 2, strings.Count(rec.Body.String(), "event:chunk"))
}

func TestQuery_StreamAbortUsesErrorStatus(t *testing.T) {
	answerer := &scriptedAnswerer{chunks: []schema.AnswerChunk{
		{IsFinal: true, Error: &schema.ChunkError{Kind: schema.SemanticSourceFailure, Message: "semantic search unavailable"}},
	}}
	rec := serve(t, NewHandler(answerer, nil), http.MethodPost, "/api/v1/query?stream=1", `{"question":"what did P002 say"}`, bearer(clinicianToken(t)))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "SemanticSourceFailure")
}

func TestHealth(t *testing.T) {
	ok := HealthChecker{Name: "mysql", Check: func(ctx context.Context) error { return nil }}
	down := HealthChecker{Name: "milvus", Check: func(ctx context.Context) error { return errors.New("connection refused") }}

	rec := serve(t, NewHandler(&scriptedAnswerer{}, nil, ok), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","components":{"mysql":"ok"}}`, rec.Body.String())

	rec = serve(t, NewHandler(&scriptedAnswerer{}, nil, ok, down), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","components":{"mysql":"ok","milvus":"error: connection refused"}}`, rec.Body.String())
}

func TestStringList(t *testing.T) {
	assert.Equal(t, []string{"LSU_TIGERS", "DEMO_TEAM"}, stringList("LSU_TIGERS, DEMO_TEAM,"))
	assert.Equal(t, []string{"LSU_TIGERS"}, stringList([]interface{}{"LSU_TIGERS", 7, " "}))
	assert.Nil(t, stringList(nil))
}
