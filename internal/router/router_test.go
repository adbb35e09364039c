package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"badgehub/internal/badgeid"
	"badgehub/internal/fetch"
	"badgehub/internal/handlers/web"
	"badgehub/internal/models"
	"badgehub/internal/nostr"
	"badgehub/internal/records"
	"badgehub/internal/relay"
	"badgehub/internal/response"
	"badgehub/internal/retry"
	"badgehub/internal/services"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

type envelope struct {
	Success bool                   `json:"success"`
	Data    json.RawMessage        `json:"data"`
	Error   *response.ErrorDetail  `json:"error"`
	Meta    *response.ResponseMeta `json:"meta"`
}

type apiFixture struct {
	t       *testing.T
	source  *relay.MemorySource
	issuer  *nostr.KeySigner
	user    *nostr.KeySigner
	sc      *services.ServiceCollection
	hub     *web.Hub
	handler http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	issuer, err := nostr.GenerateKeySigner()
	require.NoError(t, err)
	user, err := nostr.GenerateKeySigner()
	require.NoError(t, err)

	resolver := services.DefaultResolverConfig()
	resolver.AwardBudget = 500 * time.Millisecond
	resolver.DefinitionBudget = 300 * time.Millisecond
	resolver.FallbackBudget = 100 * time.Millisecond
	resolver.DisplayBudget = 300 * time.Millisecond
	resolver.ProfileBudget = 300 * time.Millisecond
	resolver.CatalogBudget = 300 * time.Millisecond
	resolver.ConfirmBudget = 100 * time.Millisecond
	resolver.FallbackPolicy = retry.Policy{MaxAttempts: 1, Interval: 10 * time.Millisecond, Strategy: retry.StrategyLinear}
	resolver.ConfirmPolicy = retry.Policy{MaxAttempts: 3, Interval: 20 * time.Millisecond, Strategy: retry.StrategyLinear}

	source := relay.NewMemorySource()
	sc, err := services.NewServiceCollectionFrom(services.Dependencies{
		Source:   source,
		Keyring:  nostr.NewKeyring(issuer, user),
		Creator:  issuer.PublicKey(),
		Resolver: resolver,
		Fetch:    fetch.NewScheduler(source, retry.Policy{MaxAttempts: 1, Interval: 10 * time.Millisecond}, nil),
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, sc.Start(context.Background()))

	hub := web.NewHub(sc, nil, zap.NewNop())
	require.NoError(t, hub.Start())

	t.Cleanup(func() {
		require.NoError(t, hub.Close())
		require.NoError(t, sc.Shutdown(context.Background()))
	})

	return &apiFixture{
		t:       t,
		source:  source,
		issuer:  issuer,
		user:    user,
		sc:      sc,
		hub:     hub,
		handler: SetupRouter(sc, hub, response.NewBuilder(nil, zap.NewNop()), zap.NewNop()),
	}
}

func (f *apiFixture) do(method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	f.t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(method, path, reader))

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func decodeData(t *testing.T, env envelope, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

// createAndAward publishes a definition through the API and awards it to
// the fixture user.
func (f *apiFixture) createAndAward(slug, name string) (models.BadgeDefinition, models.AwardRecord) {
	f.t.Helper()

	rec, env := f.do(http.MethodPost, "/api/v1/badges", map[string]string{
		"issuer": f.issuer.PublicKey(),
		"slug":   slug,
		"name":   name,
		"image":  "https://badges.example/" + slug + ".png",
	})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	var def models.BadgeDefinition
	decodeData(f.t, env, &def)

	npub, err := nostr.EncodePublicKey(f.user.PublicKey())
	require.NoError(f.t, err)
	rec, env = f.do(http.MethodPost, "/api/v1/badges/"+def.ID+"/awards", map[string][]string{
		"recipients": {npub},
	})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	var award models.AwardRecord
	decodeData(f.t, env, &award)
	return def, award
}

func TestBadgeLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	def, award := f.createAndAward("early-bird", "Early Bird")

	assert.Equal(t, badgeid.Build(nostr.KindBadgeDefinition, f.issuer.PublicKey(), "early-bird"), def.ID)
	assert.Equal(t, def.ID, award.BadgeID)
	assert.Equal(t, []string{f.user.PublicKey()}, award.Recipients)

	t.Run("recipient awards", func(t *testing.T) {
		rec, env := f.do(http.MethodGet, "/api/v1/recipients/"+f.user.PublicKey()+"/awards", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var awards []models.ResolvedAward
		decodeData(t, env, &awards)
		require.Len(t, awards, 1)
		assert.Equal(t, "Early Bird", awards[0].Name)
		assert.Equal(t, award.ID, awards[0].AwardID)
		assert.False(t, awards[0].Pending)
		require.NotNil(t, env.Meta)
		assert.Equal(t, 1, env.Meta.Count)
		assert.Zero(t, env.Meta.Pending)
	})

	t.Run("catalog", func(t *testing.T) {
		rec, env := f.do(http.MethodGet, "/api/v1/badges?issuer="+f.issuer.PublicKey(), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var defs []models.BadgeDefinition
		decodeData(t, env, &defs)
		require.Len(t, defs, 1)
		assert.Equal(t, def.ID, defs[0].ID)
		require.NotNil(t, env.Meta)
		require.NotNil(t, env.Meta.Pagination)
		assert.Equal(t, 1, env.Meta.Pagination.Total)
		assert.False(t, env.Meta.Pagination.HasMore)

		rec, env = f.do(http.MethodGet, "/api/v1/badges?issuer="+f.issuer.PublicKey()+"&offset=1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decodeData(t, env, &defs)
		assert.Empty(t, defs)

		rec, env = f.do(http.MethodGet, "/api/v1/badges/"+def.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var got models.BadgeDefinition
		decodeData(t, env, &got)
		assert.Equal(t, "Early Bird", got.Name)

		rec, env = f.do(http.MethodGet, "/api/v1/badges/"+def.ID+"/recipients", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var recipients []services.RecipientAward
		decodeData(t, env, &recipients)
		require.Len(t, recipients, 1)
		assert.Equal(t, f.user.PublicKey(), recipients[0].Recipient)
	})

	t.Run("display toggle", func(t *testing.T) {
		path := "/api/v1/profiles/" + f.user.PublicKey() + "/badges"
		rec, env := f.do(http.MethodPost, path+"?wait=true", map[string]string{
			"badge_id": def.ID,
			"award_id": award.ID,
			"action":   "add",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var toggled struct {
			List      models.ProfileDisplayList `json:"list"`
			Changed   bool                      `json:"changed"`
			Confirmed *bool                     `json:"confirmed"`
		}
		decodeData(t, env, &toggled)
		assert.True(t, toggled.Changed)
		require.NotNil(t, toggled.Confirmed)
		assert.True(t, *toggled.Confirmed)
		assert.Equal(t, []models.DisplayEntry{{BadgeID: def.ID, AwardID: award.ID}}, toggled.List.Entries)

		rec, env = f.do(http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var shown struct {
			List  models.ProfileDisplayList `json:"list"`
			State string                    `json:"state"`
		}
		decodeData(t, env, &shown)
		assert.Equal(t, "loaded", shown.State)
		assert.Len(t, shown.List.Entries, 1)
	})

	t.Run("claim", func(t *testing.T) {
		other, err := nostr.GenerateKeySigner()
		require.NoError(t, err)
		rec, env := f.do(http.MethodPost, "/api/v1/badges/"+def.ID+"/claim", map[string]string{
			"recipient": other.PublicKey(),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var claimed models.AwardRecord
		decodeData(t, env, &claimed)
		assert.Equal(t, []string{other.PublicKey()}, claimed.Recipients)
	})
}

func TestPreviewMarksPartial(t *testing.T) {
	f := newAPIFixture(t)

	// Definition only on the relay, not in the cache.
	tmpl := records.DefinitionTemplate(records.DefinitionInput{Slug: "quiet", Name: "Quiet"}, 100)
	e, err := f.issuer.Sign(tmpl)
	require.NoError(t, err)
	f.source.Add(*e)
	id := badgeid.Build(nostr.KindBadgeDefinition, f.issuer.PublicKey(), "quiet")
	a, err := f.issuer.Sign(records.AwardTemplate(id, []string{f.user.PublicKey()}, 200))
	require.NoError(t, err)
	f.source.Add(*a)

	rec, env := f.do(http.MethodGet, "/api/v1/recipients/"+f.user.PublicKey()+"/awards?preview=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.Meta)
	assert.True(t, env.Meta.Partial)
	assert.Equal(t, 1, env.Meta.Pending)
}

func TestProfileMetadata(t *testing.T) {
	f := newAPIFixture(t)

	rec, env := f.do(http.MethodGet, "/api/v1/profiles/"+f.user.PublicKey(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Type)

	e, err := f.user.Sign(nostr.Template{Kind: nostr.KindMetadata, CreatedAt: 10, Content: `{"name":"satoshi"}`})
	require.NoError(t, err)
	f.source.Add(*e)

	rec, env = f.do(http.MethodGet, "/api/v1/profiles/"+f.user.PublicKey(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile models.ProfileMetadata
	decodeData(t, env, &profile)
	assert.Equal(t, "satoshi", profile.Name)
}

func TestAPIErrors(t *testing.T) {
	f := newAPIFixture(t)
	stranger, err := nostr.GenerateKeySigner()
	require.NoError(t, err)
	validID := badgeid.Build(nostr.KindBadgeDefinition, f.issuer.PublicKey(), "x")

	tests := []struct {
		name    string
		method  string
		path    string
		body    interface{}
		status  int
		errType string
		code    string
	}{
		{"invalid recipient key", http.MethodGet, "/api/v1/recipients/nope/awards", nil, http.StatusBadRequest, "VALIDATION_ERROR", "INVALID_KEY"},
		{"invalid badge id", http.MethodGet, "/api/v1/badges/not-an-id", nil, http.StatusBadRequest, "VALIDATION_ERROR", "INVALID_BADGE_ID"},
		{"missing definition", http.MethodGet, "/api/v1/badges/" + validID, nil, http.StatusNotFound, "NOT_FOUND", ""},
		{"malformed body", http.MethodPost, "/api/v1/badges", "{", http.StatusBadRequest, "VALIDATION_ERROR", ""},
		{"unknown field", http.MethodPost, "/api/v1/badges", `{"bogus":1}`, http.StatusBadRequest, "VALIDATION_ERROR", ""},
		{"missing fields", http.MethodPost, "/api/v1/badges", map[string]string{"issuer": f.issuer.PublicKey()}, http.StatusBadRequest, "VALIDATION_ERROR", ""},
		{"issuer without signer", http.MethodPost, "/api/v1/badges", map[string]string{"issuer": stranger.PublicKey(), "slug": "s", "name": "n"}, http.StatusForbidden, "FORBIDDEN", "SIGNER_UNAVAILABLE"},
		{"no recipients", http.MethodPost, "/api/v1/badges/" + validID + "/awards", map[string][]string{"recipients": {}}, http.StatusBadRequest, "VALIDATION_ERROR", ""},
		{"bad toggle action", http.MethodPost, "/api/v1/profiles/" + f.user.PublicKey() + "/badges", map[string]string{"badge_id": validID, "action": "flip"}, http.StatusBadRequest, "VALIDATION_ERROR", ""},
		{"add without award", http.MethodPost, "/api/v1/profiles/" + f.user.PublicKey() + "/badges", map[string]string{"badge_id": validID, "action": "add"}, http.StatusBadRequest, "VALIDATION_ERROR", ""},
		{"toggle without signer", http.MethodPost, "/api/v1/profiles/" + stranger.PublicKey() + "/badges", map[string]string{"badge_id": validID, "action": "remove"}, http.StatusForbidden, "FORBIDDEN", "SIGNER_UNAVAILABLE"},
		{"bad page limit", http.MethodGet, "/api/v1/badges?limit=lots", nil, http.StatusBadRequest, "VALIDATION_ERROR", ""},
		{"unknown endpoint", http.MethodGet, "/api/v1/nope", nil, http.StatusNotFound, "NOT_FOUND", ""},
		{"wrong method", http.MethodDelete, "/api/v1/badges", nil, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := f.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			require.NotNil(t, env.Error)
			assert.False(t, env.Success)
			assert.Equal(t, tt.errType, env.Error.Type)
			if tt.code != "" {
				assert.Equal(t, tt.code, env.Error.Code)
			}
		})
	}
}

func TestMonitoringEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rec, _ := f.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health services.ServiceHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Contains(t, health.Dependencies, "cache")

	f.do(http.MethodGet, "/api/v1/badges", nil)
	rec, _ = f.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `badgehub_http_requests_total{method="GET",route="/api/v1/badges",status_code="200"}`)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/badges", nil)
	req.Header.Set("Origin", "https://app.example")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

// ===============================
// LIVE HUB
// ===============================

type liveMessage struct {
	Type    string                     `json:"type"`
	PubKey  string                     `json:"pubkey"`
	Awards  []*models.ResolvedAward    `json:"awards"`
	Pending int                        `json:"pending"`
	Final   bool                       `json:"final"`
	List    *models.ProfileDisplayList `json:"list"`
	State   string                     `json:"state"`
	Event   map[string]interface{}     `json:"event"`
	Error   string                     `json:"error"`
}

func dialHub(t *testing.T, f *apiFixture) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(f.handler)
	t.Cleanup(srv.Close)

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until match accepts one or the deadline passes.
func readUntil(t *testing.T, conn *websocket.Conn, match func(liveMessage) bool) liveMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg liveMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func TestLiveAwardsUpgradePending(t *testing.T) {
	f := newAPIFixture(t)

	e, err := f.issuer.Sign(records.DefinitionTemplate(records.DefinitionInput{Slug: "late", Name: "Late"}, 100))
	require.NoError(t, err)
	f.source.Add(*e)
	id := badgeid.Build(nostr.KindBadgeDefinition, f.issuer.PublicKey(), "late")
	a, err := f.issuer.Sign(records.AwardTemplate(id, []string{f.user.PublicKey()}, 200))
	require.NoError(t, err)
	f.source.Add(*a)

	conn := dialHub(t, f)
	require.NoError(t, conn.WriteJSON(web.ClientMessage{Type: web.MsgSubscribe, Topic: web.TopicAwards, PubKey: f.user.PublicKey()}))

	first := readUntil(t, conn, func(m liveMessage) bool { return m.Type == web.MsgAwards })
	assert.False(t, first.Final)
	assert.Equal(t, 1, first.Pending)

	final := readUntil(t, conn, func(m liveMessage) bool { return m.Type == web.MsgAwards && m.Final })
	require.Len(t, final.Awards, 1)
	assert.False(t, final.Awards[0].Pending)
	assert.Equal(t, "Late", final.Awards[0].Name)
}

func TestLiveDisplayEvents(t *testing.T) {
	f := newAPIFixture(t)
	def, award := f.createAndAward("speaker", "Speaker")

	conn := dialHub(t, f)
	require.NoError(t, conn.WriteJSON(web.ClientMessage{Type: web.MsgSubscribe, Topic: web.TopicDisplay, PubKey: f.user.PublicKey()}))

	initial := readUntil(t, conn, func(m liveMessage) bool { return m.Type == web.MsgDisplay })
	require.NotNil(t, initial.List)
	assert.Empty(t, initial.List.Entries)

	rec, _ := f.do(http.MethodPost, "/api/v1/profiles/"+f.user.PublicKey()+"/badges", map[string]string{
		"badge_id": def.ID,
		"award_id": award.ID,
		"action":   "add",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	published := readUntil(t, conn, func(m liveMessage) bool {
		return m.Type == web.MsgEvent && m.Event["event_type"] == "display.published"
	})
	assert.Equal(t, def.ID, published.Event["badge_id"])
}

func TestLiveRejectsBadSubscriptions(t *testing.T) {
	f := newAPIFixture(t)
	conn := dialHub(t, f)

	require.NoError(t, conn.WriteJSON(web.ClientMessage{Type: web.MsgSubscribe, Topic: "weather", PubKey: f.user.PublicKey()}))
	msg := readUntil(t, conn, func(m liveMessage) bool { return m.Type == web.MsgError })
	assert.Equal(t, "unknown topic", msg.Error)

	require.NoError(t, conn.WriteJSON(web.ClientMessage{Type: web.MsgSubscribe, Topic: web.TopicAwards, PubKey: "zzz"}))
	msg = readUntil(t, conn, func(m liveMessage) bool { return m.Type == web.MsgError })
	assert.Equal(t, "invalid pubkey", msg.Error)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	msg = readUntil(t, conn, func(m liveMessage) bool { return m.Type == web.MsgError })
	assert.Equal(t, "malformed message", msg.Error)
}
