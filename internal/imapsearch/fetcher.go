// Package imapsearch fans a search out across many IMAP servers with
// bounded concurrency. One bad server never aborts a search: it just
// contributes no results.
package imapsearch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/velmark/mailsearch/internal/mailparse"
	"github.com/velmark/mailsearch/pkg/models"
)

// Decryptor recovers a plaintext password from its stored form.
type Decryptor interface {
	Decrypt(encrypted string) (string, error)
}

// Options tunes the fetcher.
type Options struct {
	DialTimeout time.Duration

	// SearchTimeout is the join deadline for a whole fan-out. Servers
	// that have not finished by then are abandoned.
	SearchTimeout time.Duration

	// MaxConnections bounds concurrent IMAP connections. The pool size
	// is the only concurrency throttle.
	MaxConnections int

	ConnRetries      int
	ConnRetryBackoff time.Duration

	// StrictTimeWindow enables the internal-date cross-check in
	// observer sweeps, defending against server date rounding.
	StrictTimeWindow bool
}

// Fetcher searches mail across a set of IMAP servers.
type Fetcher struct {
	parser  *mailparse.Parser
	decrypt Decryptor
	opts    Options
	logger  *slog.Logger
}

// NewFetcher creates a fetcher.
func NewFetcher(parser *mailparse.Parser, decrypt Decryptor, opts Options, logger *slog.Logger) *Fetcher {
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 15 * time.Second
	}
	if opts.SearchTimeout == 0 {
		opts.SearchTimeout = 45 * time.Second
	}
	if opts.MaxConnections < 1 {
		opts.MaxConnections = 5
	}
	if opts.ConnRetries < 1 {
		opts.ConnRetries = 3
	}
	if opts.ConnRetryBackoff == 0 {
		opts.ConnRetryBackoff = 2 * time.Second
	}
	return &Fetcher{
		parser:  parser,
		decrypt: decrypt,
		opts:    opts,
		logger:  logger.With("component", "imapsearch"),
	}
}

// criteriaFunc builds the per-folder search criteria.
type criteriaFunc func() *imap.SearchCriteria

// SearchAll searches every server for mail addressed to the target,
// within limitDays of history. limitDays <= 0 means unbounded. The
// returned union is unsorted; callers impose ordering.
func (f *Fetcher) SearchAll(ctx context.Context, servers []*models.MailServer, to string, limitDays int) []*models.ParsedMail {
	return f.fanOut(ctx, servers, func() *imap.SearchCriteria {
		criteria := imap.NewSearchCriteria()
		criteria.Header.Add("To", to)
		if limitDays > 0 {
			criteria.Since = time.Now().AddDate(0, 0, -limitDays)
		}
		return criteria
	})
}

// fanOut runs one search task per server on a pool bounded by
// MaxConnections, with a single join deadline for the whole sweep.
func (f *Fetcher) fanOut(ctx context.Context, servers []*models.MailServer, criteria criteriaFunc) []*models.ParsedMail {
	if len(servers) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.SearchTimeout)
	defer cancel()

	results := make(chan []*models.ParsedMail, len(servers))
	sem := make(chan struct{}, f.opts.MaxConnections)
	var wg sync.WaitGroup

	for _, srv := range servers {
		wg.Add(1)
		go func(srv *models.MailServer) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			results <- f.searchServer(ctx, srv, criteria())
		}(srv)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		f.logger.Warn("search deadline reached, abandoning unfinished servers")
	}

	// The channel is buffered for every server, so writers never block
	// and whatever finished in time can be drained without waiting.
	var all []*models.ParsedMail
	for {
		select {
		case mails := <-results:
			all = append(all, mails...)
		default:
			return all
		}
	}
}

// searchServer owns one IMAP connection for its whole lifetime and logs
// out on every exit path. Errors are logged, never returned: a failing
// server contributes zero results.
func (f *Fetcher) searchServer(ctx context.Context, srv *models.MailServer, criteria *imap.SearchCriteria) []*models.ParsedMail {
	logger := f.logger.With("host", srv.Host, "user", srv.Username)

	password, err := f.decrypt.Decrypt(srv.Password)
	if err != nil {
		logger.Error("failed to decrypt password", "error", err)
		return nil
	}

	c, err := f.connectWithRetry(ctx, srv, password, logger)
	if err != nil {
		logger.Warn("server skipped", "error", err)
		return nil
	}
	defer c.Logout()

	var mails []*models.ParsedMail
	for _, folder := range srv.FolderList() {
		if ctx.Err() != nil {
			break
		}
		found, err := f.searchFolder(c, folder, criteria)
		if err != nil {
			logger.Warn("folder search failed", "folder", folder, "error", err)
			continue
		}
		mails = append(mails, found...)
	}
	return mails
}

// connectWithRetry dials, then retries only the connection-limit class of
// errors with a short backoff. Auth failures are not retried.
func (f *Fetcher) connectWithRetry(ctx context.Context, srv *models.MailServer, password string, logger *slog.Logger) (*client.Client, error) {
	var lastErr error
	for attempt := 0; attempt < f.opts.ConnRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(f.opts.ConnRetryBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		c, err := f.connect(srv, password)
		if err == nil {
			return c, nil
		}
		lastErr = err
		if !isTooManyConnections(err) {
			return nil, err
		}
		logger.Debug("connection limit hit, backing off", "attempt", attempt+1)
	}
	return nil, fmt.Errorf("retries exhausted: %w", lastErr)
}

func (f *Fetcher) connect(srv *models.MailServer, password string) (*client.Client, error) {
	dialer := &net.Dialer{Timeout: f.opts.DialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", srv.Addr(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create IMAP client: %w", err)
	}

	if err := c.Login(srv.Username, password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login: %w", err)
	}
	return c, nil
}

func (f *Fetcher) searchFolder(c *client.Client, folder string, criteria *imap.SearchCriteria) ([]*models.ParsedMail, error) {
	if _, err := c.Select(folder, true); err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", folder, err)
	}

	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(ids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchInternalDate}

	messages := make(chan *imap.Message, 32)
	fetchDone := make(chan error, 1)
	go func() {
		fetchDone <- c.Fetch(seqSet, items, messages)
	}()

	var mails []*models.ParsedMail
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			continue
		}
		parsed := f.parser.Parse(raw)
		parsed.InternalDate = msg.InternalDate
		mails = append(mails, parsed)
	}

	if err := <-fetchDone; err != nil {
		return mails, fmt.Errorf("fetch failed: %w", err)
	}
	return mails, nil
}

// isTooManyConnections recognises the connection-limit error class that
// IMAP servers report with varying wording.
func isTooManyConnections(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "too many simultaneous connections") ||
		strings.Contains(msg, "too many connections") ||
		strings.Contains(msg, "maximum number of connections") ||
		strings.Contains(msg, "connection limit")
}
