package email

import (
	"bytes"
	htmltpl "html/template"
	texttpl "text/template"
)

type MagicLinkVars struct {
	Email string
	Link  string
	TTL   string
}

const magicLinkSubject = "Your sign-in link"

var (
	magicLinkHTML = htmltpl.Must(htmltpl.New("magic_link_html").Parse(
		`<p>Hi {{.Email}},</p>
<p><a href="{{.Link}}">Sign in</a>. The link is valid for {{.TTL}} and can be used once.</p>
<p>If you did not request it, ignore this email.</p>`))

	magicLinkText = texttpl.Must(texttpl.New("magic_link_txt").Parse(
		`Hi {{.Email}},

Sign in: {{.Link}}
The link is valid for {{.TTL}} and can be used once.

If you did not request it, ignore this email.
`))
)

// RenderMagicLink arma el correo del magic link.
func RenderMagicLink(v MagicLinkVars) (Message, error) {
	var h, t bytes.Buffer
	if err := magicLinkHTML.Execute(&h, v); err != nil {
		return Message{}, err
	}
	if err := magicLinkText.Execute(&t, v); err != nil {
		return Message{}, err
	}
	return Message{To: v.Email, Subject: magicLinkSubject, HTMLBody: h.String(), TextBody: t.String()}, nil
}
