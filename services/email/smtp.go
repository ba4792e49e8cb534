package emailsvc

import (
	"encoding/base64"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	simplemail "github.com/xhit/go-simple-mail/v2"

	"github.com/databayt/hogwarts-sub013/core"
)

type smtpService struct {
	server     *simplemail.SMTPServer
	from       mail.Address
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*smtpService)(nil)

func NewSMTPService(logger core.Logger) *smtpService {
	server := simplemail.NewSMTPClient()
	server.Host = core.Conf.Email.SMTPHost
	server.Port = core.Conf.Email.SMTPPort
	server.Username = core.Conf.Email.SMTPUser
	server.Password = core.Conf.Email.SMTPPassword
	server.Encryption = simplemail.EncryptionSTARTTLS
	if server.Username == "" {
		server.Authentication = simplemail.AuthNone
		server.Encryption = simplemail.EncryptionNone
	}
	server.ConnectTimeout = 10 * time.Second
	server.SendTimeout = 10 * time.Second

	return &smtpService{
		server:     server,
		from:       core.Conf.DefaultFromEmail(),
		subjPrefix: "[" + core.Conf.AppName + "] ",
		logger:     logger,
	}
}

func (svc *smtpService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := msg.Render(); err != nil {
				svc.logger.Error("rendering email", errors.Wrap(err, msg.TemplateName))
				return
			}
			if msg.HasRecipients() && (msg.HasContent() || msg.HasAttachments()) {
				if err := svc.send(*msg); err != nil {
					svc.logger.Error("sending email", err)
				}
			}
		}()
	}
}

func (svc *smtpService) build(msg core.EmailMessage) (*simplemail.Email, error) {
	email := simplemail.NewMSG()
	email.SetFrom(svc.from.String()).SetSubject(svc.subjPrefix + msg.Subject)
	for _, to := range msg.To {
		email.AddTo(to.String())
	}
	for _, cc := range msg.Cc {
		email.AddCc(cc.String())
	}
	for _, bcc := range msg.Bcc {
		email.AddBcc(bcc.String())
	}

	email.SetBody(simplemail.TextPlain, msg.TextContent)
	if msg.HTMLContent != "" {
		email.AddAlternative(simplemail.TextHTML, msg.HTMLContent)
	}

	for _, at := range msg.Attachments {
		data, err := base64.StdEncoding.DecodeString(at.Content.String())
		if err != nil {
			return nil, errors.Wrap(err, "decoding attachment")
		}
		email.Attach(&simplemail.File{Name: at.Filename, MimeType: at.ContentType, Data: data})
	}
	return email, email.Error
}

func (svc *smtpService) send(msg core.EmailMessage) error {
	email, err := svc.build(msg)
	if err != nil {
		return errors.Wrap(err, "building email")
	}
	client, err := svc.server.Connect()
	if err != nil {
		return errors.Wrap(err, "connecting to smtp server")
	}
	defer client.Close()
	return errors.Wrap(email.Send(client), "sending email")
}
