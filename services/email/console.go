package emailsvc

import (
	"context"
	"fmt"
	"log"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/feeded/core"
)

type consoleService struct {
	defaultFromEmail mail.Address
	subjPrefix       string
	out              *log.Logger // nil disables output
}

var _ core.EmailService = (*consoleService)(nil)

// NewConsoleService prints emails to stdout instead of sending them.
func NewConsoleService(conf *core.Config) core.EmailService {
	return &consoleService{
		defaultFromEmail: conf.DefaultFromEmail,
		subjPrefix:       "[" + conf.AppName + "] ",
		out:              log.New(os.Stdout, "", log.LstdFlags),
	}
}

func (svc *consoleService) Send(_ context.Context, msg *core.EmailMessage) error {
	if err := checkMessage(msg); err != nil {
		return err
	}
	body, err := svc.format(*msg)
	if err != nil {
		return err
	}
	if svc.out != nil {
		svc.out.Println(body)
	}
	return nil
}

func (svc *consoleService) format(msg core.EmailMessage) (string, error) {
	from := msg.From
	if from.Address == "" {
		from = svc.defaultFromEmail
	}
	body := new(strings.Builder)

	// Write mail header
	_, _ = fmt.Fprintf(body, "From: %s\r\n", from.String())
	_, _ = fmt.Fprint(body, "MIME-Version: 1.0\r\n")
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", svc.subjPrefix+msg.Subject)
	_, _ = fmt.Fprintf(body, "To: %s\r\n", joinAddresses(msg.To))

	altW := multipart.NewWriter(body)
	_, _ = fmt.Fprintf(body, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", altW.Boundary())

	if msg.TextContent != "" {
		w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}})
		if err != nil {
			return "", errors.Wrap(err, "creating text/plain part")
		}
		_, _ = fmt.Fprintf(w, "%s\r\n", msg.TextContent)
	}
	if msg.HTMLContent != "" {
		w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=utf-8"}})
		if err != nil {
			return "", errors.Wrap(err, "creating text/html part")
		}
		_, _ = fmt.Fprintf(w, "%s\r\n", msg.HTMLContent)
	}
	if err := altW.Close(); err != nil {
		return "", errors.Wrap(err, "closing multipart writer")
	}
	return body.String(), nil
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}

// checkMessage renders templated contents and rejects undeliverable messages.
func checkMessage(msg *core.EmailMessage) error {
	if err := msg.Render(); err != nil {
		return errors.Wrap(err, "rendering email")
	}
	if !msg.HasRecipients() {
		return errors.New("email has no recipient")
	}
	if !msg.HasContent() {
		return errors.New("email has no content")
	}
	return nil
}

// ConsoleServiceMock records sent messages instead of printing them.
// Sends to addresses passed to FailFor fail.
type ConsoleServiceMock struct {
	consoleService

	mu           sync.Mutex
	SentMessages []core.EmailMessage
	failFor      map[string]error
}

func NewConsoleServiceMock(conf *core.Config) *ConsoleServiceMock {
	return &ConsoleServiceMock{
		consoleService: consoleService{
			defaultFromEmail: conf.DefaultFromEmail,
			subjPrefix:       "[" + conf.AppName + "] ",
		},
		failFor: make(map[string]error),
	}
}

// FailFor makes sends to any of addresses fail with a gateway error.
func (svc *ConsoleServiceMock) FailFor(addresses ...string) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	for _, addr := range addresses {
		svc.failFor[addr] = errors.Errorf("gateway rejected %s", addr)
	}
}

func (svc *ConsoleServiceMock) Send(ctx context.Context, msg *core.EmailMessage) error {
	if err := checkMessage(msg); err != nil {
		return err
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	for _, to := range msg.To {
		if err, ok := svc.failFor[to.Address]; ok {
			return err
		}
	}
	if _, err := svc.format(*msg); err != nil {
		return err
	}
	svc.SentMessages = append(svc.SentMessages, *msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (svc *ConsoleServiceMock) Sent() []core.EmailMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return append([]core.EmailMessage(nil), svc.SentMessages...)
}

// Reset forgets recorded messages and failures.
func (svc *ConsoleServiceMock) Reset() {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.SentMessages = nil
	svc.failFor = make(map[string]error)
}
