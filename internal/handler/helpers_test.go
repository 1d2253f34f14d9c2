package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/herald/api/internal/content"
	"github.com/herald/api/internal/events"
	"github.com/herald/api/internal/notification"
	"github.com/herald/api/internal/signing"
	"github.com/herald/api/internal/subscription"
	"github.com/herald/api/internal/testutil"
)

type testEnv struct {
	h        *Handler
	tree     *content.Repository
	resolver *subscription.Resolver
	service  *subscription.Service
	mailbox  *testutil.Mailbox

	root, news, launch, logo *content.Node
}

// testHandler creates a fully-wired Handler backed by an in-memory SQLite
// database, with / -> /news -> /news/launch and /news/logo.png.
func testHandler(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	db := testutil.TestDB(t)

	tree := content.NewRepository(db)
	env := &testEnv{tree: tree, mailbox: &testutil.Mailbox{}}

	create := func(n *content.Node) *content.Node {
		t.Helper()
		if err := tree.Create(ctx, n); err != nil {
			t.Fatalf("creating %s: %v", n.Name, err)
		}
		return n
	}
	env.root = create(&content.Node{Kind: content.KindRoot, Title: "Home"})
	env.news = create(&content.Node{ParentID: &env.root.ID, Name: "news", Title: "News", Kind: content.KindFolder})
	env.launch = create(&content.Node{ParentID: &env.news.ID, Name: "launch", Title: "Launch", Kind: content.KindDocument})
	env.logo = create(&content.Node{ParentID: &env.news.ID, Name: "logo.png", Kind: content.KindAsset})

	env.resolver = subscription.NewResolver(tree, subscription.NewRepository(db))
	defaults := subscription.DefaultSettings()
	defaults.Enabled = true
	svc, err := subscription.NewService(ctx, subscription.Dependencies{
		Tree:      tree,
		Resolver:  env.resolver,
		Codec:     subscription.NewTokenCodec(signing.NewSigner("test-signing-secret")),
		Mailer:    env.mailbox,
		Settings:  subscription.NewSettingsRepository(db),
		PublicURL: "http://localhost:8080",
		Defaults:  defaults,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	env.service = svc

	bus := events.NewBus()
	notification.NewDispatcher(tree, svc).Register(bus)

	env.h = New(Dependencies{
		Content:  tree,
		Resolver: env.resolver,
		Service:  svc,
		Bus:      bus,
	})
	return env
}

func (env *testEnv) makeSubscribable(t *testing.T, node *content.Node) {
	t.Helper()
	if err := env.resolver.SetSubscribability(context.Background(), node, subscription.Subscribable); err != nil {
		t.Fatalf("SetSubscribability() error = %v", err)
	}
}

// request builds a request with chi URL params set, as the router would.
func request(method, target string, body interface{}, params map[string]string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")

	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("response is not valid JSON: %v\nbody: %s", err, rec.Body.String())
	}
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	decode(t, rec, &body)
	return body.Error.Code
}

// lastLink returns the path and query of the last mailed confirmation link.
func (env *testEnv) lastLink(t *testing.T) string {
	t.Helper()
	sent := env.mailbox.Sent()
	if len(sent) == 0 {
		t.Fatal("no mail sent")
	}
	u, err := url.Parse(sent[len(sent)-1].Data.ConfirmationURL)
	if err != nil {
		t.Fatalf("parsing confirmation url: %v", err)
	}
	return u.RequestURI()
}
