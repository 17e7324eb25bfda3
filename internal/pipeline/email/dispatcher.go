package email

import (
	"context"
	"net/mail"
	"regexp"

	"github.com/proplens/server/internal/pipeline/model"
	logx "github.com/proplens/server/pkg/logger"
)

// intentPatterns detect a delivery request in the raw question. The raw,
// unrewritten question is used so the address text survives verbatim.
var intentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(send|email|mail)\s+(me|to\s+me|the\s+report)\b`),
	regexp.MustCompile(`(?i)\b(report|analysis|data)\s+(to\s+)?(my\s+)?email\b`),
	regexp.MustCompile(`(?i)\bemail\s+(me|the\s+report|it)\b`),
	regexp.MustCompile(`(?i)\bsend\s+(it|the\s+report|this)\s+(to\s+)?(my\s+)?email\b`),
	regexp.MustCompile(`(?i)\bsend\s+(it|this|the\s+report)?\s*to\s+\S+@\S+`),
}

var addressPattern = regexp.MustCompile(`[\w.+-]+@[\w.-]+\.[A-Za-z]{2,}`)

// DetectIntent reports whether the question asks for the report by email.
func DetectIntent(question string) bool {
	for _, p := range intentPatterns {
		if p.MatchString(question) {
			return true
		}
	}
	return false
}

// ExtractAddress pulls the first syntactically valid address out of the
// question.
func ExtractAddress(question string) (string, bool) {
	candidate := addressPattern.FindString(question)
	if candidate == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(candidate)
	if err != nil {
		return "", false
	}
	return addr.Address, true
}

// Mailer is the external mail collaborator. Rendering the report into a
// document (PDF etc.) and SMTP transport are its responsibility.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

const reportSubject = "Property Market Report"

// Dispatcher hands finished reports to the mail collaborator. Delivery
// failure is recorded as a status, never as a pipeline error, and the
// already-produced report is left untouched.
type Dispatcher struct {
	mailer Mailer
}

func NewDispatcher(mailer Mailer) *Dispatcher {
	return &Dispatcher{mailer: mailer}
}

func (d *Dispatcher) Dispatch(ctx context.Context, st *model.PipelineState) {
	if st.EmailIntent == "" {
		st.EmailStatus = model.EmailNotRequested
		return
	}

	if d.mailer == nil {
		logx.Warn().Str("request_id", st.RequestID).Msg("email requested but no mailer is configured")
		st.EmailStatus = model.EmailFailed
		return
	}

	if err := d.mailer.Send(ctx, st.EmailIntent, reportSubject, st.Report); err != nil {
		logx.Warn().Err(err).
			Str("request_id", st.RequestID).
			Str("recipient", st.EmailIntent).
			Msg("report email delivery failed")
		st.EmailStatus = model.EmailFailed
		return
	}

	logx.Info().
		Str("request_id", st.RequestID).
		Str("recipient", st.EmailIntent).
		Msg("report emailed")
	st.EmailStatus = model.EmailSent
}
