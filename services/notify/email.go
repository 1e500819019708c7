package notifysvc

import (
	"context"
	"net/mail"
	"strings"

	"github.com/trezcool/swcache/core"
	"github.com/trezcool/swcache/core/cache"
)

// EmailRelay mirrors every shown notification to a fixed list of recipients.
// Email delivery is asynchronous and never fails Show.
type EmailRelay struct {
	cache.Notifier
	mailSvc core.EmailService
	to      []mail.Address
	origin  string
}

var _ cache.Notifier = (*EmailRelay)(nil)

func NewEmailRelay(next cache.Notifier, mailSvc core.EmailService, origin string, to ...string) *EmailRelay {
	addrs := make([]mail.Address, 0, len(to))
	for _, addr := range to {
		if a, err := mail.ParseAddress(addr); err == nil {
			addrs = append(addrs, *a)
		}
	}
	return &EmailRelay{Notifier: next, mailSvc: mailSvc, to: addrs, origin: strings.TrimRight(origin, "/")}
}

type notificationEmailData struct {
	Title string
	Body  string
	URL   string
}

func (r *EmailRelay) Show(ctx context.Context, n cache.Notification) error {
	if err := r.Notifier.Show(ctx, n); err != nil {
		return err
	}
	if len(r.to) == 0 {
		return nil
	}

	link := n.Data.URL
	if strings.HasPrefix(link, "/") {
		link = r.origin + link
	}
	r.mailSvc.SendMessages(&core.EmailMessage{
		To:           r.to,
		Subject:      n.Title,
		TemplateName: "notification",
		TemplateData: notificationEmailData{Title: n.Title, Body: n.Body, URL: link},
	})
	return nil
}
