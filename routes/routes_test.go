package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"prestige_server/config"
	"prestige_server/matching"
	"prestige_server/models"
	"prestige_server/services"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testServer struct {
	router      *mux.Router
	store       *services.SQLStore
	preferences *services.PreferenceService
}

func newTestServer(t *testing.T, opts matching.Options) *testServer {
	t.Helper()
	store, err := services.OpenSQLStore(config.BackendSQLite, filepath.Join(t.TempDir(), "prestige.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	preferences := services.NewPreferenceService(store)
	publisher := services.NewMatchPublisher(store)
	runner := services.NewMatchRunner(store, publisher, opts)

	r := mux.NewRouter()
	RegisterRoutes(r)
	RegisterPreferenceRoutes(r, preferences, time.Second)
	RegisterMatchRoutes(r, runner, publisher, time.Second)
	return &testServer{router: r, store: store, preferences: preferences}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (s *testServer) register(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		rec := s.do(t, http.MethodPost, "/api/profiles", map[string]string{"profileId": id})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
}

func (s *testServer) swipe(t *testing.T, actor, target string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, http.MethodPost, "/api/swipes", models.SwipeEvent{ActorID: actor, TargetID: target, IsPositive: true})
}

func TestHealthAndWelcome(t *testing.T) {
	srv := newTestServer(t, matching.Options{})

	for _, path := range []string{"/health", "/welcome", "/"} {
		rec := srv.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, decode[map[string]string](t, rec), "message")
	}

	rec := srv.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRegisterProfile(t *testing.T) {
	srv := newTestServer(t, matching.Options{})

	rec := srv.do(t, http.MethodPost, "/api/profiles", map[string]string{"profileId": "p1"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/profiles", map[string]string{"profileId": "p1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]interface{}](t, rec)["created"])

	rec = srv.do(t, http.MethodPost, "/api/profiles", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/profiles", bytes.NewBufferString("{not json"))
	bad := httptest.NewRecorder()
	srv.router.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestRecordSwipe(t *testing.T) {
	srv := newTestServer(t, matching.Options{})
	srv.register(t, "p1", "p2", "p3")

	tests := []struct {
		name       string
		event      models.SwipeEvent
		wantStatus int
	}{
		{"positive", models.SwipeEvent{ActorID: "p1", TargetID: "p2", IsPositive: true}, http.StatusOK},
		{"duplicate", models.SwipeEvent{ActorID: "p1", TargetID: "p2", IsPositive: true}, http.StatusOK},
		{"negative", models.SwipeEvent{ActorID: "p1", TargetID: "p3", IsPositive: false}, http.StatusAccepted},
		{"self", models.SwipeEvent{ActorID: "p1", TargetID: "p1", IsPositive: true}, http.StatusBadRequest},
		{"missing target", models.SwipeEvent{ActorID: "p1", IsPositive: true}, http.StatusBadRequest},
		{"unknown target", models.SwipeEvent{ActorID: "p1", TargetID: "p9", IsPositive: true}, http.StatusNotFound},
		{"unknown actor", models.SwipeEvent{ActorID: "p9", TargetID: "p1", IsPositive: true}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/api/swipes", tt.event)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}

	rec := srv.do(t, http.MethodGet, "/api/preferences/p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	record := decode[models.PreferenceRecord](t, rec)
	assert.Equal(t, []string{"p2"}, record.Preferences)

	rec = srv.do(t, http.MethodGet, "/api/preferences/p9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordSwipe_AppendResult(t *testing.T) {
	srv := newTestServer(t, matching.Options{})
	srv.register(t, "p1", "p2", "p3")

	first := decode[models.AppendResult](t, srv.swipe(t, "p1", "p2"))
	assert.Equal(t, models.AppendResult{Length: 1, Appended: true}, first)

	second := decode[models.AppendResult](t, srv.swipe(t, "p1", "p3"))
	assert.Equal(t, models.AppendResult{Length: 2, Appended: true}, second)

	again := decode[models.AppendResult](t, srv.swipe(t, "p1", "p2"))
	assert.Equal(t, models.AppendResult{Length: 2, Appended: false}, again)
}

func TestRunMatching_PublishesRoundRobinPairs(t *testing.T) {
	srv := newTestServer(t, matching.Options{})
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%d", i+1)
	}
	srv.register(t, ids...)
	for i := 1; i <= 10; i++ {
		for k := 1; k <= 3; k++ {
			rec := srv.swipe(t, fmt.Sprintf("p%d", i), fmt.Sprintf("p%d", (i-1+k)%10+1))
			require.Equal(t, http.StatusOK, rec.Code)
		}
	}

	rec := srv.do(t, http.MethodGet, "/api/match/p1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/match/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[struct {
		Run models.MatchRun `json:"run"`
	}](t, rec)
	assert.Equal(t, models.RunStatusPublished, body.Run.Status)
	assert.Equal(t, 5, body.Run.Pairs)
	assert.Equal(t, 2, body.Run.Passes)

	want := map[string]string{"p1": "p2", "p2": "p1", "p3": "p4", "p4": "p3", "p9": "p10", "p10": "p9"}
	for profile, partner := range want {
		rec := srv.do(t, http.MethodGet, "/api/match/"+profile, nil)
		require.Equal(t, http.StatusOK, rec.Code, profile)
		match := decode[models.MatchRecord](t, rec)
		assert.Equal(t, partner, match.PartnerID, profile)
		assert.Equal(t, body.Run.RunID, match.RunID)
	}
}

func TestRunMatching_DidNotConverge(t *testing.T) {
	srv := newTestServer(t, matching.Options{MaxPasses: 1})
	srv.register(t, "p1", "p2", "p3")
	require.Equal(t, http.StatusOK, srv.swipe(t, "p1", "p2").Code)
	require.Equal(t, http.StatusOK, srv.swipe(t, "p2", "p1").Code)

	rec := srv.do(t, http.MethodPost, "/api/match/run", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[struct {
		Error string          `json:"error"`
		Run   models.MatchRun `json:"run"`
	}](t, rec)
	assert.Equal(t, models.RunStatusDidNotConverge, body.Run.Status)

	rec = srv.do(t, http.MethodGet, "/api/match/p1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
