package mail

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/restrict-content-pro/membership-scheduler/internal/domain"
)

const expirationLayout = "January 2, 2006"

// Template is a subject/body pair containing %tag% placeholders.
type Template struct {
	Subject string
	Body    string
}

// RenderTags replaces the supported %tag% placeholders with member values.
// Unknown tags are left as-is.
func RenderTags(text string, m domain.Member, siteName string, loc *time.Location) string {
	expiration := "none"
	if m.Expiration != nil {
		if loc == nil {
			loc = time.UTC
		}
		expiration = m.Expiration.In(loc).Format(expirationLayout)
	}

	displayName := m.DisplayName
	if displayName == "" {
		displayName = m.Username
	}
	fullName := strings.TrimSpace(m.FirstName + " " + m.LastName)
	if fullName == "" {
		fullName = displayName
	}

	r := strings.NewReplacer(
		"%displayname%", displayName,
		"%username%", m.Username,
		"%useremail%", m.Email,
		"%firstname%", m.FirstName,
		"%lastname%", m.LastName,
		"%name%", fullName,
		"%expiration%", expiration,
		"%subscription_name%", m.SubscriptionName,
		"%member_id%", strconv.FormatInt(m.ID, 10),
		"%sitename%", siteName,
	)
	return r.Replace(text)
}

// Notifier sends the member lifecycle emails.
type Notifier struct {
	sender   Sender
	siteName string
	loc      *time.Location
	expiring Template
	expired  Template
}

// NewNotifier creates a notifier using the given templates.
func NewNotifier(sender Sender, siteName string, loc *time.Location, expiring, expired Template) *Notifier {
	return &Notifier{
		sender:   sender,
		siteName: siteName,
		loc:      loc,
		expiring: expiring,
		expired:  expired,
	}
}

// SendExpiringNotice emails the renewal reminder.
func (n *Notifier) SendExpiringNotice(ctx context.Context, m domain.Member) error {
	return n.send(ctx, m, n.expiring)
}

// SendExpiredNotice emails the expiration notice.
func (n *Notifier) SendExpiredNotice(ctx context.Context, m domain.Member) error {
	return n.send(ctx, m, n.expired)
}

func (n *Notifier) send(ctx context.Context, m domain.Member, t Template) error {
	if strings.TrimSpace(m.Email) == "" {
		return errors.New("member has no email address")
	}
	return n.sender.Send(ctx, Message{
		To:      m.Email,
		Subject: RenderTags(t.Subject, m, n.siteName, n.loc),
		Body:    RenderTags(t.Body, m, n.siteName, n.loc),
	})
}
