package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vango-go/vai-tutor/pkg/backend/auth"
	"github.com/vango-go/vai-tutor/pkg/backend/lifecycle"
	"github.com/vango-go/vai-tutor/pkg/backend/mint"
	"github.com/vango-go/vai-tutor/pkg/backend/store"
	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/core/types"
)

type fakeMinter struct {
	token string
	err   error
	got   mint.MintRequest
}

func (m *fakeMinter) Mint(ctx context.Context, req mint.MintRequest) (string, error) {
	m.got = req
	return m.token, m.err
}

type pingErr struct{ err error }

func (p pingErr) Ping(context.Context) error { return p.err }

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{
		Driver: store.DriverSQLite,
		DSN:    "file:" + filepath.Join(t.TempDir(), "tutor.db"),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return s
}

func newLearner(t *testing.T, s *store.Store, email string) types.Profile {
	t.Helper()
	p, err := s.CreateLearner(context.Background(), store.NewLearner{
		Name: "Maya", Email: email, Age: 9, SelectedVoice: "coral", TokenHash: auth.HashToken(email),
	})
	if err != nil {
		t.Fatalf("CreateLearner() error = %v", err)
	}
	return p
}

func asLearner(r *http.Request, p types.Profile) *http.Request {
	return r.WithContext(auth.WithPrincipal(r.Context(), &auth.Principal{Learner: p}))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) core.Error {
	t.Helper()
	var env struct {
		Error core.Error `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, rr.Body.String())
	}
	return env.Error
}

func TestReadyHandler(t *testing.T) {
	t.Parallel()

	lc := &lifecycle.Lifecycle{}
	tests := []struct {
		name     string
		draining bool
		db       Pinger
		want     int
	}{
		{"ready", false, pingErr{}, http.StatusOK},
		{"db down", false, pingErr{err: errors.New("refused")}, http.StatusServiceUnavailable},
		{"draining", true, pingErr{}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		lc.SetDraining(tt.draining)
		rr := httptest.NewRecorder()
		ReadyHandler{Lifecycle: lc, DB: tt.db}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rr.Code != tt.want {
			t.Fatalf("%s: status=%d, want %d", tt.name, rr.Code, tt.want)
		}
	}
}

func TestVoicesHandler(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	VoicesHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/voices", nil))
	var all types.VoicesResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &all)
	if len(all.Voices) != 8 {
		t.Fatalf("voices=%d, want 8", len(all.Voices))
	}

	rr = httptest.NewRecorder()
	VoicesHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/voices?age=6", nil))
	var young types.VoicesResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &young)
	for _, v := range young.Voices {
		if !v.SuitableFor(6) {
			t.Fatalf("voice %s offered to a 6 year old", v.ID)
		}
	}
	if len(young.Voices) == 0 || len(young.Voices) == len(all.Voices) {
		t.Fatalf("age filter returned %d voices", len(young.Voices))
	}

	rr = httptest.NewRecorder()
	VoicesHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/voices?age=abc", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rr.Code)
	}
}

func TestRegisterHandler(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	h := RegisterHandler{Store: s, DefaultVoice: "shimmer"}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"name":"Maya","email":"Maya@Example.com","age":9}`)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	var reg types.Registration
	if err := json.Unmarshal(rr.Body.Bytes(), &reg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.HasPrefix(reg.Token, auth.TokenPrefix) || reg.User.Email != "maya@example.com" || reg.User.SelectedVoice != "shimmer" {
		t.Fatalf("registration=%+v", reg)
	}
	if _, err := s.LearnerByTokenHash(context.Background(), auth.HashToken(reg.Token)); err != nil {
		t.Fatalf("token does not resolve: %v", err)
	}

	tests := []struct {
		name   string
		body   string
		status int
		param  string
	}{
		{"duplicate", `{"name":"Maya","email":"maya@example.com","age":9}`, http.StatusConflict, ""},
		{"too young", `{"name":"Tiny","email":"tiny@example.com","age":3}`, http.StatusBadRequest, "age"},
		{"bad voice", `{"name":"Sam","email":"sam@example.com","age":9,"selectedVoice":"robot"}`, http.StatusBadRequest, "selectedVoice"},
		{"unknown field", `{"name":"Sam","email":"sam@example.com","age":9,"role":"admin"}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(tt.body)))
		if rr.Code != tt.status {
			t.Fatalf("%s: status=%d, want %d (%s)", tt.name, rr.Code, tt.status, rr.Body.String())
		}
		if got := decodeError(t, rr); got.Param != tt.param {
			t.Fatalf("%s: param=%q, want %q", tt.name, got.Param, tt.param)
		}
	}
}

func TestCreateConversationHandler(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	learner := newLearner(t, s, "create@example.com")
	minter := &fakeMinter{token: "ek_1"}
	h := CreateConversationHandler{Store: s, Minter: minter, DefaultVoice: "shimmer"}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, asLearner(httptest.NewRequest(http.MethodPost, "/api/conversation", nil), learner))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	var ticket types.SessionTicket
	if err := json.Unmarshal(rr.Body.Bytes(), &ticket); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ticket.SessionID == "" || ticket.StreamToken != "ek_1" || ticket.Voice != "coral" || ticket.UserName != "Maya" || ticket.UserAge != 9 {
		t.Fatalf("ticket=%+v", ticket)
	}
	if !strings.Contains(minter.got.Instructions, "Maya, who is 9 years old") || minter.got.Voice != "coral" {
		t.Fatalf("mint request=%+v", minter.got)
	}
}

func TestCreateConversationHandler_MintFailureRemovesRow(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	learner := newLearner(t, s, "mintfail@example.com")
	h := CreateConversationHandler{Store: s, Minter: &fakeMinter{err: errors.New("vendor down")}}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, asLearner(httptest.NewRequest(http.MethodPost, "/api/conversation", nil), learner))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status=%d, want 502", rr.Code)
	}
	if got := decodeError(t, rr); got.Type != core.ErrAPI {
		t.Fatalf("type=%q", got.Type)
	}
	page, err := s.ListConversations(context.Background(), learner.ID, 20, 0)
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	if page.Pagination.Total != 0 {
		t.Fatalf("total=%d, want orphan row removed", page.Pagination.Total)
	}
}

func endRequest(learner types.Profile, id, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPatch, "/api/conversation/"+id+"/end", strings.NewReader(body))
	r.SetPathValue("id", id)
	return asLearner(r, learner)
}

func TestEndConversationHandler(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	learner := newLearner(t, s, "end@example.com")
	conv, err := s.CreateConversation(context.Background(), learner.ID)
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	h := EndConversationHandler{Store: s}

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, endRequest(learner, conv.ID, `{"durationMinutes":2,"topic":"Math","pointsEarned":4}`))
		if rr.Code != http.StatusOK {
			t.Fatalf("call %d: status=%d body=%q", i, rr.Code, rr.Body.String())
		}
		var resp types.ConversationResponse
		_ = json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Conversation.PointsEarned != 4 || !resp.Conversation.Ended() {
			t.Fatalf("call %d: conversation=%+v", i, resp.Conversation)
		}
	}
	profile, _ := s.LearnerByID(context.Background(), learner.ID)
	if profile.TotalPoints != 4 {
		t.Fatalf("TotalPoints=%d, want 4", profile.TotalPoints)
	}

	tests := []struct {
		name   string
		id     string
		body   string
		status int
	}{
		{"missing points", conv.ID, `{"durationMinutes":2,"topic":"Math"}`, http.StatusBadRequest},
		{"zero points", conv.ID, `{"durationMinutes":2,"topic":"Math","pointsEarned":0}`, http.StatusBadRequest},
		{"blank topic", conv.ID, `{"durationMinutes":2,"topic":"  ","pointsEarned":2}`, http.StatusBadRequest},
		{"unknown id", "nope", `{"durationMinutes":2,"pointsEarned":2}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, endRequest(learner, tt.id, tt.body))
		if rr.Code != tt.status {
			t.Fatalf("%s: status=%d, want %d", tt.name, rr.Code, tt.status)
		}
	}
}

func TestListConversationsHandler(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	learner := newLearner(t, s, "list@example.com")
	for i := 0; i < 3; i++ {
		if _, err := s.CreateConversation(context.Background(), learner.ID); err != nil {
			t.Fatalf("CreateConversation() error = %v", err)
		}
	}
	h := ListConversationsHandler{Store: s}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, asLearner(httptest.NewRequest(http.MethodGet, "/api/conversations?limit=2", nil), learner))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var page types.ConversationPage
	_ = json.Unmarshal(rr.Body.Bytes(), &page)
	if len(page.Conversations) != 2 || !page.Pagination.HasMore || page.Pagination.Total != 3 {
		t.Fatalf("page=%+v", page)
	}

	for _, q := range []string{"limit=0", "limit=101", "offset=-1", "limit=x"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, asLearner(httptest.NewRequest(http.MethodGet, "/api/conversations?"+q, nil), learner))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d, want 400", q, rr.Code)
		}
	}
}

func TestProfileHandler_RequiresPrincipal(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	ProfileHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", rr.Code)
	}
}

func TestUpdateProfileHandler(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	learner := newLearner(t, s, "maya@example.com")
	h := UpdateProfileHandler{Store: s}
	patch := func(body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, asLearner(httptest.NewRequest(http.MethodPatch, "/api/profile", strings.NewReader(body)), learner))
		return rr
	}

	rr := patch(`{"selectedVoice":"verse","name":"Maya R"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	var resp types.ProfileResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.User.SelectedVoice != "verse" || resp.User.Name != "Maya R" {
		t.Fatalf("user=%+v, want voice verse and name Maya R", resp.User)
	}
	stored, err := s.LearnerByID(context.Background(), learner.ID)
	if err != nil {
		t.Fatalf("LearnerByID() error = %v", err)
	}
	if stored.SelectedVoice != "verse" {
		t.Fatalf("stored voice=%q, want verse", stored.SelectedVoice)
	}

	tests := []struct {
		name  string
		body  string
		param string
	}{
		{"unknown voice", `{"selectedVoice":"robot"}`, "selectedVoice"},
		{"voice too old for age 9", `{"selectedVoice":"sage"}`, "selectedVoice"},
		{"empty", `{}`, ""},
	}
	for _, tt := range tests {
		rr := patch(tt.body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d, want 400 (%s)", tt.name, rr.Code, rr.Body.String())
		}
		if got := decodeError(t, rr); got.Param != tt.param {
			t.Fatalf("%s: param=%q, want %q", tt.name, got.Param, tt.param)
		}
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, "/api/profile", strings.NewReader(`{"name":"X"}`)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", rr.Code)
	}
}
