package notification

import (
	"context"
	"io"
	"log"
	"regexp"
	"slices"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/audio-annotator/internal/errors"
)

// credentialPattern matches the user info part of service URLs
var credentialPattern = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://)[^@/\s]+@`)

// ShoutrrrProvider sends to every configured service URL
type ShoutrrrProvider struct {
	urls    []string
	sender  *router.ServiceRouter
	timeout time.Duration
}

// NewShoutrrrProvider parses urls and builds a sender
func NewShoutrrrProvider(urls []string, timeout time.Duration) (*ShoutrrrProvider, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("at least one notification URL is required").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, errors.Newf("invalid notification URL: %s", scrub(err.Error())).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))

	return &ShoutrrrProvider{urls: slices.Clone(urls), sender: sender, timeout: timeout}, nil
}

// Name implements Provider
func (s *ShoutrrrProvider) Name() string { return "shoutrrr" }

// Send implements Provider. The router enforces its own timeout.
func (s *ShoutrrrProvider) Send(_ context.Context, n Notification) error {
	params := stypes.Params{}
	if n.Title != "" {
		params.SetTitle(n.Title)
	}

	for _, err := range s.sender.Send(n.Message, &params) {
		if err != nil {
			return errors.Newf("notification delivery failed: %s", scrub(err.Error())).
				Component("notification").
				Category(errors.CategoryNotification).
				Build()
		}
	}
	return nil
}

// scrub removes credentials embedded in service URLs
func scrub(msg string) string {
	return credentialPattern.ReplaceAllString(msg, "${1}[redacted]@")
}
