package emailsvc

import (
	"context"
	"net/http"
	"net/mail"

	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/trezcool/feeded/core"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

type sendgridService struct {
	key        string
	from       mail.Address
	subjPrefix string
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config) core.EmailService {
	return &sendgridService{
		key:        conf.Email.SendgridAPIKey,
		from:       conf.DefaultFromEmail,
		subjPrefix: "[" + conf.AppName + "] ",
	}
}

// prepare sends from the verified sender address; the organization becomes the display name and reply-to.
func (svc *sendgridService) prepare(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject
	for _, to := range msg.To {
		p.AddTos(sgmail.NewEmail(to.Name, to.Address))
	}

	from := sgmail.NewEmail(svc.from.Name, svc.from.Address)
	m := sgmail.NewV3Mail()
	if msg.From.Address != "" {
		from.Name = msg.From.Name
		m.SetReplyTo(sgmail.NewEmail(msg.From.Name, msg.From.Address))
	}
	m.SetFrom(from)
	m.AddPersonalizations(p)

	if msg.TextContent != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	}
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	return m
}

func (svc *sendgridService) Send(_ context.Context, msg *core.EmailMessage) error {
	if err := checkMessage(msg); err != nil {
		return err
	}

	req := sendgrid.GetRequest(svc.key, endpoint, host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(svc.prepare(*msg))

	res, err := sendgrid.API(req)
	if err != nil {
		return errors.Wrap(err, "sendgrid request")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("sendgrid status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
