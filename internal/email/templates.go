package email

import (
	"bytes"
	"html/template"
)

var (
	confirmationTmpl = template.Must(template.New("confirm").Parse(`<p>Welcome!</p>
<p>Please confirm your email address by clicking the link below.</p>
<p><a href="{{.}}">Confirm email</a></p>
<p>If you did not create an account you can ignore this message.</p>`))

	resetTmpl = template.Must(template.New("reset").Parse(`<p>We received a request to reset your password.</p>
<p><a href="{{.}}">Reset password</a></p>
<p>The link expires in 24 hours. If you did not ask for a reset you can ignore this message.</p>`))
)

// ConfirmationEmail renders the email confirmation mail for link.
func ConfirmationEmail(link string) (subject, body string) {
	return "Confirm your email", render(confirmationTmpl, link)
}

// PasswordResetEmail renders the password reset mail for link.
func PasswordResetEmail(link string) (subject, body string) {
	return "Reset your password", render(resetTmpl, link)
}

func render(t *template.Template, link string) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, link); err != nil {
		return ""
	}
	return buf.String()
}
