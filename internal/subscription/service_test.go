package subscription

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/herald/api/internal/content"
	"github.com/herald/api/internal/email"
	"github.com/herald/api/internal/signing"
	"github.com/herald/api/internal/testutil"
)

type serviceFixture struct {
	svc      *Service
	resolver *Resolver
	tree     *testTree
	mailbox  *testutil.Mailbox
	settings *SettingsRepository
}

func newServiceFixture(t *testing.T, enabled bool) *serviceFixture {
	t.Helper()
	tree, store := newTestTree(t)
	resolver := NewResolver(tree.repo, store)
	mailbox := &testutil.Mailbox{}
	settings := NewSettingsRepository(tree.db)

	defaults := DefaultSettings()
	defaults.Enabled = enabled
	defaults.SiteName = "Example"

	svc, err := NewService(context.Background(), Dependencies{
		Tree:      tree.repo,
		Resolver:  resolver,
		Codec:     NewTokenCodec(signing.NewSigner("test-secret")),
		Mailer:    mailbox,
		Settings:  settings,
		PublicURL: "https://news.example.com/",
		Defaults:  defaults,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return &serviceFixture{svc: svc, resolver: resolver, tree: tree, mailbox: mailbox, settings: settings}
}

// confirmationParams extracts content, email and token from a mailed link.
func confirmationParams(t *testing.T, link string) (path, contentID, addr, token string) {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parsing confirmation url %q: %v", link, err)
	}
	q := u.Query()
	return u.Path, q.Get("content"), q.Get("email"), q.Get("token")
}

func lastMail(t *testing.T, m *testutil.Mailbox) testutil.SentMail {
	t.Helper()
	sent := m.Sent()
	if len(sent) == 0 {
		t.Fatal("no mail sent")
	}
	return sent[len(sent)-1]
}

func TestNewService_InstallsDefaults(t *testing.T) {
	f := newServiceFixture(t, false)

	stored, ok, err := f.settings.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %v; want stored defaults", ok, err)
	}
	if stored.SiteName != "Example" || stored.MaxDelayDays != 3 || stored.Enabled {
		t.Errorf("stored settings = %+v", stored)
	}
}

func TestNewService_KeepsStoredSettings(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()
	if err := f.svc.EnableSubscriptions(ctx); err != nil {
		t.Fatalf("EnableSubscriptions() error = %v", err)
	}

	// A restart with different defaults must not reset the stored row.
	again, err := NewService(ctx, Dependencies{
		Tree:     f.tree.repo,
		Resolver: f.resolver,
		Codec:    NewTokenCodec(signing.NewSigner("test-secret")),
		Mailer:   f.mailbox,
		Settings: f.settings,
		Defaults: DefaultSettings(),
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if !again.Settings().Enabled || again.Settings().SiteName != "Example" {
		t.Errorf("Settings() = %+v, want stored settings", again.Settings())
	}
}

func TestService_AreSubscriptionsEnabled(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()
	mustSet(t, f.resolver, f.tree.folder, Subscribable)

	ok, _ := f.svc.AreSubscriptionsEnabled(ctx, f.tree.doc)
	if ok {
		t.Error("AreSubscriptionsEnabled() = true while globally disabled")
	}

	if err := f.svc.EnableSubscriptions(ctx); err != nil {
		t.Fatalf("EnableSubscriptions() error = %v", err)
	}
	ok, _ = f.svc.AreSubscriptionsEnabled(ctx, nil)
	if !ok {
		t.Error("AreSubscriptionsEnabled(nil) = false while enabled")
	}
	ok, _ = f.svc.AreSubscriptionsEnabled(ctx, f.tree.doc)
	if !ok {
		t.Error("AreSubscriptionsEnabled(doc) = false under a subscribable folder")
	}
	ok, _ = f.svc.AreSubscriptionsEnabled(ctx, f.tree.asset)
	if ok {
		t.Error("AreSubscriptionsEnabled(asset) = true")
	}
	ok, _ = f.svc.AreSubscriptionsEnabled(ctx, f.tree.root)
	if ok {
		t.Error("AreSubscriptionsEnabled(root) = true while root is not subscribable")
	}
}

func TestService_SubscribeFlow(t *testing.T) {
	f := newServiceFixture(t, true)
	ctx := context.Background()
	mustSet(t, f.resolver, f.tree.doc, Subscribable)

	// Request: one confirmation mail
	if err := f.svc.RequestSubscription(ctx, f.tree.doc, "reader@example.com"); err != nil {
		t.Fatalf("RequestSubscription() error = %v", err)
	}
	mail := lastMail(t, f.mailbox)
	if mail.Template != email.TemplateSubscriptionConfirmation {
		t.Fatalf("template = %q, want %q", mail.Template, email.TemplateSubscriptionConfirmation)
	}
	if mail.Data.To != "reader@example.com" || mail.Data.SiteName != "Example" || mail.Data.ConfirmationDelay != 3 {
		t.Errorf("mail data = %+v", mail.Data)
	}

	path, contentID, addr, token := confirmationParams(t, mail.Data.ConfirmationURL)
	if path != "/news/launch/subscriptions/@@confirm_subscription" {
		t.Errorf("confirmation path = %q", path)
	}
	if contentID != f.tree.doc.ID || addr != "reader@example.com" || token == "" {
		t.Errorf("confirmation params = %q %q %q", contentID, addr, token)
	}
	if !strings.HasPrefix(mail.Data.ConfirmationURL, "https://news.example.com/news/launch/") {
		t.Errorf("confirmation url = %q", mail.Data.ConfirmationURL)
	}

	// Nothing is stored until the link is followed
	ok, _ := f.resolver.IsSubscribed(ctx, f.tree.doc, "reader@example.com")
	if ok {
		t.Fatal("subscribed before confirmation")
	}

	node, err := f.svc.ConfirmSubscription(ctx, contentID, addr, token)
	if err != nil {
		t.Fatalf("ConfirmSubscription() error = %v", err)
	}
	if node.ID != f.tree.doc.ID {
		t.Errorf("ConfirmSubscription() node = %q, want %q", node.ID, f.tree.doc.ID)
	}
	ok, _ = f.resolver.IsSubscribed(ctx, f.tree.doc, "reader@example.com")
	if !ok {
		t.Fatal("not subscribed after confirmation")
	}

	// A second request is refused with a notice to the owner of the address
	f.mailbox.Reset()
	err = f.svc.RequestSubscription(ctx, f.tree.doc, "reader@example.com")
	if !errors.Is(err, ErrAlreadySubscribed) {
		t.Fatalf("RequestSubscription() error = %v, want %v", err, ErrAlreadySubscribed)
	}
	sent := f.mailbox.Sent()
	if len(sent) != 1 || sent[0].Template != email.TemplateAlreadySubscribed {
		t.Fatalf("sent = %+v, want one already_subscribed notice", sent)
	}
}

func TestService_AlreadySubscribedPointsAtOwner(t *testing.T) {
	f := newServiceFixture(t, true)
	ctx := context.Background()
	mustSet(t, f.resolver, f.tree.folder, Subscribable)
	mustSubscribe(t, f.resolver, f.tree.folder, "reader@example.com")

	err := f.svc.RequestSubscription(ctx, f.tree.doc, "reader@example.com")
	if !errors.Is(err, ErrAlreadySubscribed) {
		t.Fatalf("RequestSubscription() error = %v, want %v", err, ErrAlreadySubscribed)
	}
	mail := lastMail(t, f.mailbox)
	if mail.Data.ContentTitle != "Launch" || mail.Data.SubscribedTitle != "News" {
		t.Errorf("titles = %q / %q, want Launch / News", mail.Data.ContentTitle, mail.Data.SubscribedTitle)
	}
	if mail.Data.ServiceURL != "https://news.example.com/news/subscriptions" {
		t.Errorf("ServiceURL = %q", mail.Data.ServiceURL)
	}
}

func TestService_RequestSubscription_Preconditions(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		setup   func(*testing.T, *serviceFixture)
		node    func(*serviceFixture) *content.Node
		email   string
		want    error
	}{
		{
			name:    "globally disabled",
			enabled: false,
			setup:   func(t *testing.T, f *serviceFixture) { mustSet(t, f.resolver, f.tree.doc, Subscribable) },
			node:    func(f *serviceFixture) *content.Node { return f.tree.doc },
			email:   "a@example.com",
			want:    ErrNotSubscribable,
		},
		{
			name:    "not subscribable",
			enabled: true,
			setup:   func(t *testing.T, f *serviceFixture) {},
			node:    func(f *serviceFixture) *content.Node { return f.tree.doc },
			email:   "a@example.com",
			want:    ErrNotSubscribable,
		},
		{
			name:    "asset",
			enabled: true,
			setup:   func(t *testing.T, f *serviceFixture) { mustSet(t, f.resolver, f.tree.folder, Subscribable) },
			node:    func(f *serviceFixture) *content.Node { return f.tree.asset },
			email:   "a@example.com",
			want:    ErrNotSubscribable,
		},
		{
			name:    "invalid email",
			enabled: true,
			setup:   func(t *testing.T, f *serviceFixture) { mustSet(t, f.resolver, f.tree.doc, Subscribable) },
			node:    func(f *serviceFixture) *content.Node { return f.tree.doc },
			email:   "not-an-address",
			want:    ErrInvalidEmail,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t, tt.enabled)
			tt.setup(t, f)

			err := f.svc.RequestSubscription(context.Background(), tt.node(f), tt.email)
			if !errors.Is(err, tt.want) {
				t.Errorf("RequestSubscription() error = %v, want %v", err, tt.want)
			}
			if n := len(f.mailbox.Sent()); n != 0 {
				t.Errorf("sent %d mails, want 0", n)
			}
		})
	}
}

func TestService_ConfirmSubscription_Rejections(t *testing.T) {
	f := newServiceFixture(t, true)
	ctx := context.Background()
	mustSet(t, f.resolver, f.tree.doc, Subscribable)

	token := f.svc.codec.Generate(f.tree.doc.ID, "a@example.com", ActionConfirmSubscription)
	cancelToken := f.svc.codec.Generate(f.tree.doc.ID, "a@example.com", ActionConfirmCancellation)

	tests := []struct {
		name      string
		contentID string
		email     string
		token     string
		want      error
	}{
		{"unknown content", "missing", "a@example.com", token, ErrSubscriptionFailed},
		{"wrong email", f.tree.doc.ID, "b@example.com", token, ErrSubscriptionFailed},
		{"cancellation token", f.tree.doc.ID, "a@example.com", cancelToken, ErrSubscriptionFailed},
		{"garbage token", f.tree.doc.ID, "a@example.com", "garbage", ErrSubscriptionFailed},
		{"asset", f.tree.asset.ID, "a@example.com", token, ErrNotSubscribable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ConfirmSubscription(ctx, tt.contentID, tt.email, tt.token)
			if !errors.Is(err, tt.want) {
				t.Errorf("ConfirmSubscription() error = %v, want %v", err, tt.want)
			}
		})
	}

	ok, _ := f.resolver.IsSubscribed(ctx, f.tree.doc, "a@example.com")
	if ok {
		t.Error("a rejected confirmation subscribed the address")
	}
}

func TestService_ConfirmSubscription_Expired(t *testing.T) {
	f := newServiceFixture(t, true)
	ctx := context.Background()
	mustSet(t, f.resolver, f.tree.doc, Subscribable)

	old := f.svc.codec.WithClock(fixedClock(time.Now().Add(-4 * 24 * time.Hour)))
	token := old.Generate(f.tree.doc.ID, "a@example.com", ActionConfirmSubscription)

	_, err := f.svc.ConfirmSubscription(ctx, f.tree.doc.ID, "a@example.com", token)
	if !errors.Is(err, ErrSubscriptionFailed) {
		t.Errorf("ConfirmSubscription() error = %v, want %v", err, ErrSubscriptionFailed)
	}
}

func TestService_ConfirmSubscription_Disabled(t *testing.T) {
	f := newServiceFixture(t, false)
	mustSet(t, f.resolver, f.tree.doc, Subscribable)
	token := f.svc.codec.Generate(f.tree.doc.ID, "a@example.com", ActionConfirmSubscription)

	_, err := f.svc.ConfirmSubscription(context.Background(), f.tree.doc.ID, "a@example.com", token)
	if !errors.Is(err, ErrNotSubscribable) {
		t.Errorf("ConfirmSubscription() error = %v, want %v", err, ErrNotSubscribable)
	}
}

func TestService_CancellationFlow(t *testing.T) {
	f := newServiceFixture(t, true)
	ctx := context.Background()
	mustSet(t, f.resolver, f.tree.folder, Subscribable)
	mustSubscribe(t, f.resolver, f.tree.folder, "reader@example.com")

	// The request is made on the document but the subscription lives on
	// the folder, so the link targets the folder.
	if err := f.svc.RequestCancellation(ctx, f.tree.doc, "reader@example.com"); err != nil {
		t.Fatalf("RequestCancellation() error = %v", err)
	}
	mail := lastMail(t, f.mailbox)
	if mail.Template != email.TemplateCancellationConfirmation {
		t.Fatalf("template = %q, want %q", mail.Template, email.TemplateCancellationConfirmation)
	}
	path, contentID, addr, token := confirmationParams(t, mail.Data.ConfirmationURL)
	if path != "/news/subscriptions/@@confirm_cancellation" {
		t.Errorf("confirmation path = %q", path)
	}
	if contentID != f.tree.folder.ID {
		t.Errorf("content = %q, want the folder %q", contentID, f.tree.folder.ID)
	}

	if _, err := f.svc.ConfirmCancellation(ctx, contentID, addr, token); err != nil {
		t.Fatalf("ConfirmCancellation() error = %v", err)
	}
	ok, _ := f.resolver.IsSubscribed(ctx, f.tree.doc, "reader@example.com")
	if ok {
		t.Error("still subscribed after cancellation")
	}

	// Cancelling again: not subscribed notice
	f.mailbox.Reset()
	err := f.svc.RequestCancellation(ctx, f.tree.doc, "reader@example.com")
	if !errors.Is(err, ErrNotSubscribed) {
		t.Fatalf("RequestCancellation() error = %v, want %v", err, ErrNotSubscribed)
	}
	sent := f.mailbox.Sent()
	if len(sent) != 1 || sent[0].Template != email.TemplateNotSubscribed {
		t.Fatalf("sent = %+v, want one not_subscribed notice", sent)
	}
}

func TestService_ConfirmCancellation_Rejections(t *testing.T) {
	f := newServiceFixture(t, true)
	ctx := context.Background()
	mustSet(t, f.resolver, f.tree.doc, Subscribable)
	mustSubscribe(t, f.resolver, f.tree.doc, "a@example.com")

	subToken := f.svc.codec.Generate(f.tree.doc.ID, "a@example.com", ActionConfirmSubscription)
	assetToken := f.svc.codec.Generate(f.tree.asset.ID, "a@example.com", ActionConfirmCancellation)

	tests := []struct {
		name      string
		contentID string
		token     string
	}{
		{"unknown content", "missing", subToken},
		{"subscription token", f.tree.doc.ID, subToken},
		{"asset", f.tree.asset.ID, assetToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ConfirmCancellation(ctx, tt.contentID, "a@example.com", tt.token)
			if !errors.Is(err, ErrCancellationFailed) {
				t.Errorf("ConfirmCancellation() error = %v, want %v", err, ErrCancellationFailed)
			}
		})
	}

	ok, _ := f.resolver.IsSubscribed(ctx, f.tree.doc, "a@example.com")
	if !ok {
		t.Error("a rejected cancellation removed the subscription")
	}
}

type memoryReplayGuard struct {
	seen map[string]bool
}

func (g *memoryReplayGuard) Consume(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	if g.seen[token] {
		return false, nil
	}
	g.seen[token] = true
	return true, nil
}

func (g *memoryReplayGuard) Release(ctx context.Context, token string) error {
	delete(g.seen, token)
	return nil
}

func TestService_ReplayGuard(t *testing.T) {
	f := newServiceFixture(t, true)
	f.svc.replay = &memoryReplayGuard{seen: make(map[string]bool)}
	ctx := context.Background()
	mustSet(t, f.resolver, f.tree.doc, Subscribable)

	token := f.svc.codec.Generate(f.tree.doc.ID, "a@example.com", ActionConfirmSubscription)
	if _, err := f.svc.ConfirmSubscription(ctx, f.tree.doc.ID, "a@example.com", token); err != nil {
		t.Fatalf("first ConfirmSubscription() error = %v", err)
	}
	_, err := f.svc.ConfirmSubscription(ctx, f.tree.doc.ID, "a@example.com", token)
	if !errors.Is(err, ErrSubscriptionFailed) {
		t.Errorf("replayed ConfirmSubscription() error = %v, want %v", err, ErrSubscriptionFailed)
	}
}

func TestService_ReplayAllowedWithoutGuard(t *testing.T) {
	f := newServiceFixture(t, true)
	ctx := context.Background()
	mustSet(t, f.resolver, f.tree.doc, Subscribable)

	token := f.svc.codec.Generate(f.tree.doc.ID, "a@example.com", ActionConfirmSubscription)
	for i := 0; i < 2; i++ {
		if _, err := f.svc.ConfirmSubscription(ctx, f.tree.doc.ID, "a@example.com", token); err != nil {
			t.Fatalf("ConfirmSubscription() #%d error = %v", i+1, err)
		}
	}
	emails, _ := f.resolver.LocalEmails(ctx, f.tree.doc)
	if len(emails) != 1 {
		t.Errorf("LocalEmails() = %v, want one entry", emails)
	}
}

func TestService_SendNotification(t *testing.T) {
	f := newServiceFixture(t, true)
	ctx := context.Background()
	mustSet(t, f.resolver, f.tree.folder, Subscribable)
	mustSubscribe(t, f.resolver, f.tree.folder, "b@example.com")
	mustSubscribe(t, f.resolver, f.tree.doc, "a@example.com")

	if err := f.svc.SendNotification(ctx, f.tree.doc, email.TemplatePublicationEvent); err != nil {
		t.Fatalf("SendNotification() error = %v", err)
	}
	sent := f.mailbox.Sent()
	if len(sent) != 2 {
		t.Fatalf("sent %d mails, want 2", len(sent))
	}
	if sent[0].Data.To != "a@example.com" || sent[1].Data.To != "b@example.com" {
		t.Errorf("recipients = %q, %q; want sorted", sent[0].Data.To, sent[1].Data.To)
	}
	if sent[0].Data.ServiceURL != "https://news.example.com/news/launch/subscriptions" {
		t.Errorf("a's ServiceURL = %q", sent[0].Data.ServiceURL)
	}
	if sent[1].Data.ServiceURL != "https://news.example.com/news/subscriptions" {
		t.Errorf("b's ServiceURL = %q", sent[1].Data.ServiceURL)
	}
	for _, m := range sent {
		if m.Template != email.TemplatePublicationEvent || m.Data.ContentTitle != "Launch" {
			t.Errorf("mail = %+v", m)
		}
	}
}

func TestService_SendNotification_Disabled(t *testing.T) {
	f := newServiceFixture(t, false)
	mustSet(t, f.resolver, f.tree.doc, Subscribable)
	mustSubscribe(t, f.resolver, f.tree.doc, "a@example.com")

	if err := f.svc.SendNotification(context.Background(), f.tree.doc, email.TemplatePublicationEvent); err != nil {
		t.Fatalf("SendNotification() error = %v", err)
	}
	if n := len(f.mailbox.Sent()); n != 0 {
		t.Errorf("sent %d mails while disabled, want 0", n)
	}
}

func TestService_SendNotification_ContinuesAfterFailure(t *testing.T) {
	f := newServiceFixture(t, true)
	mustSet(t, f.resolver, f.tree.doc, Subscribable)
	mustSubscribe(t, f.resolver, f.tree.doc, "a@example.com", "b@example.com", "c@example.com")

	boom := errors.New("smtp down")
	f.mailbox.Err = boom
	f.mailbox.FailFor = map[string]bool{"b@example.com": true}

	err := f.svc.SendNotification(context.Background(), f.tree.doc, email.TemplatePublicationEvent)
	if !errors.Is(err, boom) {
		t.Fatalf("SendNotification() error = %v, want %v", err, boom)
	}
	if !strings.Contains(err.Error(), "b@example.com") {
		t.Errorf("error %q should name the failed recipient", err)
	}
	if n := len(f.mailbox.Sent()); n != 2 {
		t.Errorf("delivered %d mails, want 2", n)
	}
}

func TestService_UpdateSettings(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()

	name := "Daily News"
	days := 7
	got, err := f.svc.UpdateSettings(ctx, SettingsUpdate{SiteName: &name, MaxDelayDays: &days})
	if err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	if got.SiteName != name || got.MaxDelayDays != 7 {
		t.Errorf("UpdateSettings() = %+v", got)
	}
	stored, _, _ := f.settings.Load(ctx)
	if stored.SiteName != name {
		t.Errorf("stored SiteName = %q, want %q", stored.SiteName, name)
	}

	bad := 0
	if _, err := f.svc.UpdateSettings(ctx, SettingsUpdate{MaxDelayDays: &bad}); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("UpdateSettings(0 days) error = %v, want %v", err, ErrInvalidSettings)
	}
	if f.svc.Settings().MaxDelayDays != 7 {
		t.Error("rejected update changed the settings")
	}
}

func TestService_ConfirmationURL_EscapesPath(t *testing.T) {
	f := newServiceFixture(t, true)
	ctx := context.Background()

	sale := &content.Node{ParentID: &f.tree.folder.ID, Name: "100% off", Title: "Sale", Kind: content.KindDocument}
	if err := f.tree.repo.Create(ctx, sale); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	mustSet(t, f.resolver, sale, Subscribable)

	if err := f.svc.RequestSubscription(ctx, sale, "a@example.com"); err != nil {
		t.Fatalf("RequestSubscription() error = %v", err)
	}
	data := lastMail(t, f.mailbox).Data

	wantPrefix := "https://news.example.com/news/100%25%20off/subscriptions/@@confirm_subscription?"
	if !strings.HasPrefix(data.ConfirmationURL, wantPrefix) {
		t.Errorf("ConfirmationURL = %q, want prefix %q", data.ConfirmationURL, wantPrefix)
	}
	if data.ContentURL != "https://news.example.com/news/100%25%20off" {
		t.Errorf("ContentURL = %q", data.ContentURL)
	}

	path, contentID, addr, token := confirmationParams(t, data.ConfirmationURL)
	if path != "/news/100% off/subscriptions/@@confirm_subscription" {
		t.Errorf("decoded path = %q", path)
	}
	if _, err := f.svc.ConfirmSubscription(ctx, contentID, addr, token); err != nil {
		t.Fatalf("ConfirmSubscription() error = %v", err)
	}
	if ok, _ := f.resolver.IsSubscribed(ctx, sale, "a@example.com"); !ok {
		t.Error("not subscribed after following the link")
	}
}

type failingStore struct {
	Store
	err error
}

func (s *failingStore) AddEmail(ctx context.Context, node *content.Node, email string) error {
	if s.err != nil {
		return s.err
	}
	return s.Store.AddEmail(ctx, node, email)
}

func TestService_ReplayGuard_FailedWriteKeepsToken(t *testing.T) {
	f := newServiceFixture(t, true)
	ctx := context.Background()
	mustSet(t, f.resolver, f.tree.doc, Subscribable)

	store := &failingStore{Store: NewRepository(f.tree.db), err: errors.New("disk I/O error")}
	f.svc.resolver = NewResolver(f.tree.repo, store)
	f.svc.replay = &memoryReplayGuard{seen: make(map[string]bool)}

	token := f.svc.codec.Generate(f.tree.doc.ID, "a@example.com", ActionConfirmSubscription)
	if _, err := f.svc.ConfirmSubscription(ctx, f.tree.doc.ID, "a@example.com", token); !errors.Is(err, store.err) {
		t.Fatalf("ConfirmSubscription() error = %v, want %v", err, store.err)
	}

	store.err = nil
	if _, err := f.svc.ConfirmSubscription(ctx, f.tree.doc.ID, "a@example.com", token); err != nil {
		t.Fatalf("retried ConfirmSubscription() error = %v", err)
	}
	if ok, _ := f.resolver.IsSubscribed(ctx, f.tree.doc, "a@example.com"); !ok {
		t.Error("not subscribed after retry")
	}
}
