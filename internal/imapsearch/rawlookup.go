package imapsearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/velmark/mailsearch/pkg/models"
)

// ErrInvalidMessageID is returned for lookup ids that cannot be a
// Message-ID.
var ErrInvalidMessageID = errors.New("invalid message id")

// RawByMessageID finds the original RFC822 bytes of a message by its
// Message-ID header, first match wins. Returns nil bytes when no server
// has it. Read-only.
func (f *Fetcher) RawByMessageID(ctx context.Context, servers []*models.MailServer, messageID string) ([]byte, error) {
	id := strings.Trim(strings.TrimSpace(messageID), "<>")
	if id == "" || !strings.Contains(id, "@") {
		return nil, ErrInvalidMessageID
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.SearchTimeout)
	defer cancel()

	for _, srv := range servers {
		if ctx.Err() != nil {
			break
		}
		raw := f.rawFromServer(ctx, srv, id)
		if raw != nil {
			return raw, nil
		}
	}
	return nil, nil
}

func (f *Fetcher) rawFromServer(ctx context.Context, srv *models.MailServer, id string) []byte {
	logger := f.logger.With("host", srv.Host)

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

	for _, folder := range srv.FolderList() {
		if ctx.Err() != nil {
			break
		}
		raw, err := rawFromFolder(c, folder, id)
		if err != nil {
			logger.Warn("lookup failed", "folder", folder, "error", err)
			continue
		}
		if raw != nil {
			return raw
		}
	}
	return nil
}

func rawFromFolder(c *client.Client, folder, id string) ([]byte, error) {
	if _, err := c.Select(folder, true); err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", folder, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("Message-Id", id)

	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(ids[0])

	section := &imap.BodySectionName{Peek: true}
	messages := make(chan *imap.Message, 1)
	fetchDone := make(chan error, 1)
	go func() {
		fetchDone <- c.Fetch(seqSet, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var raw []byte
	for msg := range messages {
		if body := msg.GetBody(section); body != nil && raw == nil {
			raw, _ = io.ReadAll(body)
		}
	}
	if err := <-fetchDone; err != nil {
		return raw, fmt.Errorf("fetch failed: %w", err)
	}
	return raw, nil
}
