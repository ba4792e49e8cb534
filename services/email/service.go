package emailsvc

import "github.com/databayt/hogwarts-sub013/core"

// New returns the email service selected by core.Conf.Email.Backend.
func New(logger core.Logger) core.EmailService {
	switch core.Conf.Email.Backend {
	case "sendgrid":
		return NewSendgridService(logger)
	case "smtp":
		return NewSMTPService(logger)
	default:
		return NewConsoleService(logger)
	}
}
