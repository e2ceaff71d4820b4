package mail

import (
	"context"
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	gomessage "github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/logger"
)

// IMAPConfig holds reply mailbox settings
type IMAPConfig struct {
	Addr     string // host:port, implicit TLS
	Username string
	Password string
	Mailbox  string
}

// IMAPPoller reads unseen messages over IMAP. Fetching the body marks a
// message seen, so each reply is returned once.
type IMAPPoller struct {
	cfg    IMAPConfig
	logger *zap.SugaredLogger
	dial   func(addr string) (*client.Client, error)
}

// NewIMAPPoller creates an IMAP poller
func NewIMAPPoller(cfg IMAPConfig, log *zap.SugaredLogger) *IMAPPoller {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &IMAPPoller{
		cfg:    cfg,
		logger: log,
		dial:   func(addr string) (*client.Client, error) { return client.DialTLS(addr, nil) },
	}
}

type pollResult struct {
	replies []Reply
	err     error
}

// PollUnseen connects, fetches every unseen message and logs out. The
// blocking client runs in its own goroutine; cancelling ctx terminates the
// connection.
func (p *IMAPPoller) PollUnseen(ctx context.Context) ([]Reply, error) {
	c, err := p.dial(p.cfg.Addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to imap %s", p.cfg.Addr)
	}

	done := make(chan pollResult, 1)
	go func() {
		replies, err := p.poll(c)
		done <- pollResult{replies: replies, err: err}
	}()

	select {
	case <-ctx.Done():
		c.Terminate()
		<-done
		return nil, ctx.Err()
	case res := <-done:
		if err := c.Logout(); err != nil {
			p.logger.Debugw("IMAP logout failed", logger.FieldError, err)
		}
		return res.replies, res.err
	}
}

func (p *IMAPPoller) poll(c *client.Client) ([]Reply, error) {
	if err := c.Login(p.cfg.Username, p.cfg.Password); err != nil {
		return nil, errors.Wrap(err, "imap login failed")
	}
	if _, err := c.Select(p.cfg.Mailbox, false); err != nil {
		return nil, errors.Wrapf(err, "failed to select mailbox %s", p.cfg.Mailbox)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, errors.Wrap(err, "imap search failed")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}

	messages := make(chan *imap.Message, len(ids))
	fetchDone := make(chan error, 1)
	go func() {
		fetchDone <- c.Fetch(seqset, items, messages)
	}()

	var replies []Reply
	for msg := range messages {
		r, err := toReply(msg, section)
		if err != nil {
			p.logger.Debugw("Dropping unreadable message", "seq", msg.SeqNum, logger.FieldError, err)
			continue
		}
		replies = append(replies, r)
	}
	if err := <-fetchDone; err != nil {
		return replies, errors.Wrap(err, "imap fetch failed")
	}

	p.logger.Debugw("Polled mailbox", logger.FieldCount, len(replies))
	return replies, nil
}

func toReply(msg *imap.Message, section *imap.BodySectionName) (Reply, error) {
	var r Reply
	if msg.Envelope != nil {
		r.Subject = msg.Envelope.Subject
		r.MessageID = msg.Envelope.MessageId
		if len(msg.Envelope.From) > 0 {
			r.From = msg.Envelope.From[0].Address()
		}
	}

	body := msg.GetBody(section)
	if body == nil {
		return r, errors.Wrap(errors.ErrMalformedInput, "message has no body")
	}
	text, err := PlainText(body)
	if err != nil {
		return r, err
	}
	r.Body = text
	return r, nil
}

// PlainText returns the text/plain content of an RFC 5322 message. When no
// text/plain part exists the first inline part is used.
func PlainText(r io.Reader) (string, error) {
	mr, err := gomessage.CreateReader(r)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse message")
	}
	defer mr.Close()

	var fallback string
	haveFallback := false
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Wrap(err, "failed to read message part")
		}

		h, ok := part.Header.(*gomessage.InlineHeader)
		if !ok {
			continue
		}
		b, err := io.ReadAll(part.Body)
		if err != nil {
			return "", errors.Wrap(err, "failed to read message body")
		}

		ct, _, _ := h.ContentType()
		if ct == "" || strings.EqualFold(ct, "text/plain") {
			return string(b), nil
		}
		if !haveFallback {
			fallback = string(b)
			haveFallback = true
		}
	}

	if haveFallback {
		return fallback, nil
	}
	return "", errors.Wrap(errors.ErrMalformedInput, "message has no inline text")
}
