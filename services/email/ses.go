package emailsvc

import (
	"context"
	"net/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/pkg/errors"

	"github.com/trezcool/feeded/core"
)

const sesCharset = "UTF-8"

// sesAPI is the part of the SES client used here.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type sesService struct {
	client     sesAPI
	from       mail.Address
	subjPrefix string
}

var _ core.EmailService = (*sesService)(nil)

func NewSESService(ctx context.Context, conf *core.Config) (core.EmailService, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(conf.Email.SESRegion)}
	if conf.Email.SESAccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			conf.Email.SESAccessKeyID, conf.Email.SESSecretAccessKey, "",
		)))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "loading AWS config")
	}
	return newSESService(sesv2.NewFromConfig(cfg), conf), nil
}

func newSESService(client sesAPI, conf *core.Config) *sesService {
	return &sesService{
		client:     client,
		from:       conf.DefaultFromEmail,
		subjPrefix: "[" + conf.AppName + "] ",
	}
}

func (svc *sesService) input(msg core.EmailMessage) *sesv2.SendEmailInput {
	from := svc.from
	in := &sesv2.SendEmailInput{
		Destination: &types.Destination{},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(svc.subjPrefix + msg.Subject), Charset: aws.String(sesCharset)},
				Body:    &types.Body{},
			},
		},
	}
	if msg.From.Address != "" {
		from.Name = msg.From.Name
		in.ReplyToAddresses = []string{msg.From.String()}
	}
	in.FromEmailAddress = aws.String(from.String())
	for _, to := range msg.To {
		in.Destination.ToAddresses = append(in.Destination.ToAddresses, to.String())
	}
	if msg.TextContent != "" {
		in.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.TextContent), Charset: aws.String(sesCharset)}
	}
	if msg.HTMLContent != "" {
		in.Content.Simple.Body.Html = &types.Content{Data: aws.String(msg.HTMLContent), Charset: aws.String(sesCharset)}
	}
	return in
}

func (svc *sesService) Send(ctx context.Context, msg *core.EmailMessage) error {
	if err := checkMessage(msg); err != nil {
		return err
	}
	if _, err := svc.client.SendEmail(ctx, svc.input(*msg)); err != nil {
		return errors.Wrap(err, "ses send email")
	}
	return nil
}
