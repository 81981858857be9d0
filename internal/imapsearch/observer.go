package imapsearch

import (
	"context"
	"time"

	"github.com/emersion/go-imap"

	"github.com/velmark/mailsearch/pkg/models"
)

// graceWindow compensates for IMAP servers rounding SINCE to whole days
// and for clock skew between servers.
const graceWindow = 5 * time.Minute

// SearchForObserver sweeps all servers for mail received since the given
// instant, optionally narrowed to one sender. When the strict time window
// is enabled, results whose internal date predates since minus a small
// grace window are discarded, regardless of what the server's SINCE
// matching returned.
func (f *Fetcher) SearchForObserver(ctx context.Context, servers []*models.MailServer, since time.Time, sender string) []*models.ParsedMail {
	mails := f.fanOut(ctx, servers, func() *imap.SearchCriteria {
		criteria := imap.NewSearchCriteria()
		criteria.Since = since
		if sender != "" {
			criteria.Header.Add("From", sender)
		}
		return criteria
	})

	if !f.opts.StrictTimeWindow {
		return mails
	}
	return filterSince(mails, since.Add(-graceWindow))
}

func filterSince(mails []*models.ParsedMail, cutoff time.Time) []*models.ParsedMail {
	kept := make([]*models.ParsedMail, 0, len(mails))
	for _, m := range mails {
		if m.InternalDate.IsZero() || !m.InternalDate.Before(cutoff) {
			kept = append(kept, m)
		}
	}
	return kept
}
