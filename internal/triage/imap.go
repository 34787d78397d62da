package triage

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// Inbox yields unread messages. FetchUnseen must leave them unread;
// the caller marks them once they are handled.
type Inbox interface {
	FetchUnseen(ctx context.Context, limit int) ([]Message, error)
	MarkSeen(ctx context.Context, uids []uint32) error
}

type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// IMAPInbox reads INBOX over implicit TLS. Bodies are fetched with PEEK, so
// a reply stays unread until MarkSeen.
type IMAPInbox struct {
	cfg     IMAPConfig
	timeout time.Duration
}

func NewIMAPInbox(cfg IMAPConfig) *IMAPInbox {
	return &IMAPInbox{cfg: cfg, timeout: time.Minute}
}

// open logs in and selects INBOX read-write. The caller must Logout.
func (in *IMAPInbox) open(ctx context.Context) (*client.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(in.cfg.Host, strconv.Itoa(in.cfg.Port))
	c, err := client.DialWithDialerTLS(&net.Dialer{Timeout: in.timeout}, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	c.Timeout = in.timeout

	if err := c.Login(in.cfg.Username, in.cfg.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select(imap.InboxName, false); err != nil {
		c.Logout()
		return nil, fmt.Errorf("selecting inbox: %w", err)
	}
	return c, nil
}

// FetchUnseen returns up to limit of the most recent unread messages,
// oldest first. Messages that fail to parse are logged and skipped.
func (in *IMAPInbox) FetchUnseen(ctx context.Context, limit int) ([]Message, error) {
	c, err := in.open(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("searching unseen: %w", err)
	}
	uids = latest(uids, limit)
	if len(uids) == 0 {
		return nil, nil
	}
	slog.Debug("fetching unseen messages", "count", len(uids))

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	fetched := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, fetched)
	}()

	var out []Message
	for msg := range fetched {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		m, err := ParseMessage(body)
		if err != nil {
			slog.Warn("skipping unparseable message", "uid", msg.Uid, "error", err)
			continue
		}
		m.UID = msg.Uid
		out = append(out, m)
	}
	if err := <-done; err != nil {
		return out, fmt.Errorf("fetching messages: %w", err)
	}
	return out, nil
}

// MarkSeen sets \Seen on the given UIDs.
func (in *IMAPInbox) MarkSeen(ctx context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	c, err := in.open(ctx)
	if err != nil {
		return err
	}
	defer c.Logout()

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("marking %d messages seen: %w", len(uids), err)
	}
	return nil
}

// latest keeps the last n ids; n <= 0 keeps all.
func latest(ids []uint32, n int) []uint32 {
	if n <= 0 || len(ids) <= n {
		return ids
	}
	return ids[len(ids)-n:]
}
