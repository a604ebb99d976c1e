package email

import (
	"fmt"
	"html/template"
	"strings"
)

type message struct {
	subject string
	html    string
	text    string
}

var (
	magicLinkTmpl = template.Must(template.New("magic_link").Parse(`
<p>Click the link below to sign in:</p>
<p><a href="{{.Link}}">Sign in to Launchpad</a></p>
<p>This link expires in 15 minutes. If you didn't request it, you can safely ignore this email.</p>`))

	welcomeTmpl = template.Must(template.New("welcome").Parse(`
<h2>Welcome to Launchpad, {{.Name}}!</h2>
<p>Your account is ready. Head to your dashboard to get started:</p>
<p><a href="{{.BaseURL}}/dashboard">Open dashboard</a></p>`))

	subscriptionConfirmedTmpl = template.Must(template.New("subscription_confirmed").Parse(`
<h2>Your {{.PlanName}} subscription is active</h2>
<p>Thanks for subscribing. You can manage billing any time from your settings:</p>
<p><a href="{{.BaseURL}}/dashboard/settings">Manage subscription</a></p>`))

	onboardingCompleteTmpl = template.Must(template.New("onboarding_complete").Parse(`
<h2>You're all set up{{if .Name}}, {{.Name}}{{end}}!</h2>
<p>Onboarding is complete. Jump back in whenever you're ready:</p>
<p><a href="{{.BaseURL}}/dashboard">Go to dashboard</a></p>`))
)

func render(tmpl *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", tmpl.Name(), err)
	}
	return b.String(), nil
}

func renderMagicLink(link string) (*message, error) {
	html, err := render(magicLinkTmpl, map[string]string{"Link": link})
	if err != nil {
		return nil, err
	}
	return &message{
		subject: "Sign in to Launchpad",
		html:    html,
		text:    fmt.Sprintf("Click the link below to sign in:\n\n%s\n\nThis link expires in 15 minutes.", link),
	}, nil
}

func renderWelcome(name, baseURL string) (*message, error) {
	if name == "" {
		name = "there"
	}
	html, err := render(welcomeTmpl, map[string]string{"Name": name, "BaseURL": baseURL})
	if err != nil {
		return nil, err
	}
	return &message{
		subject: "Welcome to Launchpad",
		html:    html,
		text:    fmt.Sprintf("Welcome to Launchpad, %s! Your dashboard: %s/dashboard", name, baseURL),
	}, nil
}

func renderSubscriptionConfirmed(planName, baseURL string) (*message, error) {
	html, err := render(subscriptionConfirmedTmpl, map[string]string{"PlanName": planName, "BaseURL": baseURL})
	if err != nil {
		return nil, err
	}
	return &message{
		subject: fmt.Sprintf("Your %s subscription is active", planName),
		html:    html,
		text:    fmt.Sprintf("Your %s subscription is active. Manage billing: %s/dashboard/settings", planName, baseURL),
	}, nil
}

func renderOnboardingComplete(name, baseURL string) (*message, error) {
	html, err := render(onboardingCompleteTmpl, map[string]string{"Name": name, "BaseURL": baseURL})
	if err != nil {
		return nil, err
	}
	return &message{
		subject: "You're all set up!",
		html:    html,
		text:    fmt.Sprintf("Onboarding is complete. Your dashboard: %s/dashboard", baseURL),
	}, nil
}
