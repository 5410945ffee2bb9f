package mailer

import "fmt"

// renderBody produces the plain-text body for a task. Unknown template
// identifiers fall back to a bare link so a misconfigured task still carries
// its payload.
func renderBody(task Task) string {
	username := task.Locals["username"]
	link := task.Locals["link"]

	switch task.Template {
	case TemplateVerification:
		return fmt.Sprintf(
			"Hi %s,\n\nplease confirm your email address by opening the link below:\n\n%s\n\nIf you did not create this account, you can ignore this message.\n",
			username, link)
	case TemplateRecovery:
		expiry := ""
		if window := task.Locals["window"]; window != "" {
			expiry = fmt.Sprintf("The link expires in %s. ", window)
		}
		return fmt.Sprintf(
			"Hi %s,\n\na password reset was requested for your account. Open the link below to choose a new password:\n\n%s\n\n%sIf you did not request this, you can ignore this message.\n",
			username, link, expiry)
	default:
		return link
	}
}
