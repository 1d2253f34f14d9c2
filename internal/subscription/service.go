package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/herald/api/internal/content"
	"github.com/herald/api/internal/email"
	"github.com/herald/api/internal/metrics"
)

// Mailer delivers one rendered template to data.To.
type Mailer interface {
	Send(ctx context.Context, t email.Template, data email.Data) error
}

type Service struct {
	tree      Tree
	resolver  *Resolver
	codec     *TokenCodec
	mailer    Mailer
	store     SettingsStore
	replay    ReplayGuard
	metrics   *metrics.Metrics
	publicURL string

	mu       sync.RWMutex
	settings Settings
}

// Dependencies holds everything the Service needs. ReplayGuard and Metrics
// are optional.
type Dependencies struct {
	Tree        Tree
	Resolver    *Resolver
	Codec       *TokenCodec
	Mailer      Mailer
	Settings    SettingsStore
	ReplayGuard ReplayGuard
	Metrics     *metrics.Metrics
	PublicURL   string
	// Defaults seed the settings store on first start.
	Defaults Settings
}

// NewService loads the persisted settings, saving deps.Defaults when none
// exist yet.
func NewService(ctx context.Context, deps Dependencies) (*Service, error) {
	s := &Service{
		tree:      deps.Tree,
		resolver:  deps.Resolver,
		codec:     deps.Codec,
		mailer:    deps.Mailer,
		store:     deps.Settings,
		replay:    deps.ReplayGuard,
		metrics:   deps.Metrics,
		publicURL: strings.TrimRight(deps.PublicURL, "/"),
	}

	settings, ok, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading subscription settings: %w", err)
	}
	if !ok {
		settings = deps.Defaults
		if err := settings.Validate(); err != nil {
			return nil, err
		}
		if err := s.store.Save(ctx, settings); err != nil {
			return nil, fmt.Errorf("saving subscription settings: %w", err)
		}
		slog.Info("installed subscription settings", "component", "subscription", "enabled", settings.Enabled)
	}
	s.settings = settings
	return s, nil
}

func (s *Service) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *Service) EnableSubscriptions(ctx context.Context) error {
	enabled := true
	_, err := s.UpdateSettings(ctx, SettingsUpdate{Enabled: &enabled})
	return err
}

func (s *Service) DisableSubscriptions(ctx context.Context) error {
	enabled := false
	_, err := s.UpdateSettings(ctx, SettingsUpdate{Enabled: &enabled})
	return err
}

func (s *Service) UpdateSettings(ctx context.Context, update SettingsUpdate) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := update.apply(s.settings)
	if err := next.Validate(); err != nil {
		return s.settings, err
	}
	if err := s.store.Save(ctx, next); err != nil {
		return s.settings, err
	}
	s.settings = next
	return next, nil
}

// AreSubscriptionsEnabled reports the global switch, and for a non-nil node
// whether that node can currently be subscribed to.
func (s *Service) AreSubscriptionsEnabled(ctx context.Context, node *content.Node) (bool, error) {
	if !s.Settings().Enabled {
		return false, nil
	}
	if node == nil {
		return true, nil
	}
	if !s.resolver.Supports(node) {
		return false, nil
	}
	return s.resolver.IsSubscribable(ctx, node)
}

// RequestSubscription mails a confirmation link to email. An address that is
// already subscribed gets a notice instead and ErrAlreadySubscribed is
// returned.
func (s *Service) RequestSubscription(ctx context.Context, node *content.Node, addr string) (err error) {
	defer func() { s.metrics.Request("request_subscription", resultLabel(err)) }()

	if err := s.checkSubscribable(ctx, node); err != nil {
		return err
	}
	if err := ValidateEmail(addr); err != nil {
		return err
	}

	existing, err := s.resolver.Subscription(ctx, node, addr)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := s.sendConfirmation(ctx, node, existing.Content, addr, email.TemplateAlreadySubscribed, ActionConfirmSubscription); err != nil {
			return err
		}
		return ErrAlreadySubscribed
	}

	return s.sendConfirmation(ctx, node, node, addr, email.TemplateSubscriptionConfirmation, ActionConfirmSubscription)
}

// RequestCancellation mails a cancellation link for the node that actually
// holds the subscription. An address that is not subscribed gets a notice
// instead and ErrNotSubscribed is returned.
func (s *Service) RequestCancellation(ctx context.Context, node *content.Node, addr string) (err error) {
	defer func() { s.metrics.Request("request_cancellation", resultLabel(err)) }()

	if err := s.checkSubscribable(ctx, node); err != nil {
		return err
	}
	if err := ValidateEmail(addr); err != nil {
		return err
	}

	existing, err := s.resolver.Subscription(ctx, node, addr)
	if err != nil {
		return err
	}
	if existing == nil {
		if err := s.mailer.Send(ctx, email.TemplateNotSubscribed, s.baseData(node, addr)); err != nil {
			return err
		}
		return ErrNotSubscribed
	}

	return s.sendConfirmation(ctx, node, existing.Content, addr, email.TemplateCancellationConfirmation, ActionConfirmCancellation)
}

// ConfirmSubscription checks token and adds email to the content's own set.
// It returns the content that was subscribed to.
func (s *Service) ConfirmSubscription(ctx context.Context, contentID, addr, token string) (node *content.Node, err error) {
	defer func() { s.metrics.Request("confirm_subscription", resultLabel(err)) }()

	settings := s.Settings()
	if !settings.Enabled {
		return nil, ErrNotSubscribable
	}

	node, err = s.tree.GetByID(ctx, contentID)
	if errors.Is(err, content.ErrNodeNotFound) {
		return nil, ErrSubscriptionFailed
	}
	if err != nil {
		return nil, err
	}
	if !s.resolver.Supports(node) {
		return nil, ErrNotSubscribable
	}
	subscribable, err := s.resolver.IsSubscribable(ctx, node)
	if err != nil {
		return nil, err
	}
	if !subscribable {
		return nil, ErrNotSubscribable
	}

	if !s.codec.Validate(node.ID, addr, ActionConfirmSubscription, token, settings.MaxDelay()) {
		return nil, ErrSubscriptionFailed
	}
	if err := s.consume(ctx, token, settings, ErrSubscriptionFailed); err != nil {
		return nil, err
	}
	if err := s.resolver.Subscribe(ctx, node, addr); err != nil {
		s.release(ctx, token)
		return nil, err
	}
	slog.Info("subscription confirmed", "component", "subscription", "content_id", node.ID)
	return node, nil
}

// ConfirmCancellation checks token and removes email from the content's own
// set.
func (s *Service) ConfirmCancellation(ctx context.Context, contentID, addr, token string) (node *content.Node, err error) {
	defer func() { s.metrics.Request("confirm_cancellation", resultLabel(err)) }()

	settings := s.Settings()
	if !settings.Enabled {
		return nil, ErrNotSubscribable
	}

	node, err = s.tree.GetByID(ctx, contentID)
	if errors.Is(err, content.ErrNodeNotFound) {
		return nil, ErrCancellationFailed
	}
	if err != nil {
		return nil, err
	}
	if !s.resolver.Supports(node) {
		return nil, ErrCancellationFailed
	}

	if !s.codec.Validate(node.ID, addr, ActionConfirmCancellation, token, settings.MaxDelay()) {
		return nil, ErrCancellationFailed
	}
	if err := s.consume(ctx, token, settings, ErrCancellationFailed); err != nil {
		return nil, err
	}
	if err := s.resolver.Unsubscribe(ctx, node, addr); err != nil {
		s.release(ctx, token)
		return nil, err
	}
	slog.Info("subscription cancelled", "component", "subscription", "content_id", node.ID)
	return node, nil
}

// SendNotification mails t about node to every effective subscriber. Every
// recipient is attempted; delivery failures are joined into the result.
func (s *Service) SendNotification(ctx context.Context, node *content.Node, t email.Template) error {
	if !s.Settings().Enabled {
		return nil
	}

	subscriptions, err := s.resolver.Subscriptions(ctx, node)
	if err != nil {
		return err
	}

	addrs := make([]string, 0, len(subscriptions))
	for addr := range subscriptions {
		addrs = append(addrs, addr)
	}
	slices.Sort(addrs)

	var errs []error
	for _, addr := range addrs {
		sub := subscriptions[addr]
		data := s.baseData(node, addr)
		data.SubscribedTitle = title(sub.Content)
		data.SubscribedURL = s.contentURL(sub.Content)
		data.ServiceURL = s.serviceURL(sub.Content)
		if err := s.mailer.Send(ctx, t, data); err != nil {
			errs = append(errs, fmt.Errorf("notifying %s: %w", addr, err))
		}
	}

	slog.Info("sent notifications", "component", "subscription",
		"content_id", node.ID,
		"template", string(t),
		"recipients", len(addrs),
		"failed", len(errs),
	)
	return errors.Join(errs...)
}

// ConfirmationURL builds the link a recipient follows to confirm action on
// node.
func (s *Service) ConfirmationURL(node *content.Node, addr string, action Action) string {
	q := url.Values{}
	q.Set("content", node.ID)
	q.Set("email", addr)
	q.Set("token", s.codec.Generate(node.ID, addr, action))
	return s.serviceURL(node) + "/@@" + string(action) + "?" + q.Encode()
}

func (s *Service) checkSubscribable(ctx context.Context, node *content.Node) error {
	enabled, err := s.AreSubscriptionsEnabled(ctx, node)
	if err != nil {
		return err
	}
	if !enabled {
		return ErrNotSubscribable
	}
	return nil
}

func (s *Service) consume(ctx context.Context, token string, settings Settings, failure error) error {
	if s.replay == nil {
		return nil
	}
	first, err := s.replay.Consume(ctx, token, settings.MaxDelay())
	if err != nil {
		return fmt.Errorf("checking token reuse: %w", err)
	}
	if !first {
		return failure
	}
	return nil
}

// release hands a consumed token back after the change it confirmed could
// not be stored, so the link keeps working.
func (s *Service) release(ctx context.Context, token string) {
	if s.replay == nil {
		return
	}
	if err := s.replay.Release(ctx, token); err != nil {
		slog.Warn("releasing confirmation token failed", "component", "subscription", "error", err)
	}
}

func (s *Service) sendConfirmation(ctx context.Context, node, subscribed *content.Node, addr string, t email.Template, action Action) error {
	data := s.baseData(node, addr)
	data.SubscribedTitle = title(subscribed)
	data.SubscribedURL = s.contentURL(subscribed)
	data.ServiceURL = s.serviceURL(subscribed)
	data.ConfirmationURL = s.ConfirmationURL(subscribed, addr, action)
	return s.mailer.Send(ctx, t, data)
}

func (s *Service) baseData(node *content.Node, addr string) email.Data {
	settings := s.Settings()
	return email.Data{
		From:              settings.From,
		To:                addr,
		SiteName:          settings.SiteName,
		ContentTitle:      title(node),
		ContentURL:        s.contentURL(node),
		ConfirmationDelay: settings.MaxDelayDays,
	}
}

// contentURL escapes each path segment, since node names may contain
// spaces or percent signs.
func (s *Service) contentURL(node *content.Node) string {
	if node.Path == content.RootPath {
		return s.publicURL + "/"
	}
	return s.publicURL + (&url.URL{Path: node.Path}).EscapedPath()
}

func (s *Service) serviceURL(node *content.Node) string {
	return strings.TrimRight(s.contentURL(node), "/") + "/subscriptions"
}

func title(node *content.Node) string {
	if node.Title != "" {
		return node.Title
	}
	if node.Name != "" {
		return node.Name
	}
	return node.Path
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotSubscribable):
		return "not_subscribable"
	case errors.Is(err, ErrInvalidEmail):
		return "invalid_email"
	case errors.Is(err, ErrAlreadySubscribed):
		return "already_subscribed"
	case errors.Is(err, ErrNotSubscribed):
		return "not_subscribed"
	case errors.Is(err, ErrSubscriptionFailed), errors.Is(err, ErrCancellationFailed):
		return "rejected"
	}
	return "error"
}
