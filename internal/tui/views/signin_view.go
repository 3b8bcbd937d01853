package views

import (
	"fmt"

	"github.com/dropdeck/dropdeck/internal/tui/ui"
	"github.com/rivo/tview"
)

// Credentials is what the sign-in form collects.
type Credentials struct {
	Email        string
	Password     string
	CaptchaToken string
}

// SignInView asks for the account credentials when the daemon reports
// that authentication is required.
type SignInView struct {
	*tview.Flex
	theme    *ui.Theme
	form     *tview.Form
	message  *tview.TextView
	onSubmit func(Credentials)
}

// NewSignInView creates the sign-in form.
func NewSignInView(theme *ui.Theme) *SignInView {
	form := tview.NewForm()
	form.SetBorder(true)
	form.SetBorderColor(theme.BorderColor)
	form.SetBackgroundColor(theme.BgColor)
	form.SetTitle(" Sign in ")
	form.SetTitleColor(theme.TitleColor)
	form.SetFieldBackgroundColor(theme.TableCursorBg)
	form.SetFieldTextColor(theme.FgColor)
	form.SetLabelColor(theme.MenuKeyColor)
	form.SetButtonBackgroundColor(theme.TableCursorBg)
	form.SetButtonTextColor(theme.TableCursorFg)

	message := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	message.SetBackgroundColor(theme.BgColor)

	sv := &SignInView{
		theme:   theme,
		form:    form,
		message: message,
	}

	form.AddInputField("Email", "", 40, nil, nil)
	form.AddPasswordField("Password", "", 40, '*', nil)
	form.AddInputField("Captcha token", "", 40, nil, nil)
	form.AddButton("Sign in", sv.submit)

	sv.Flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(form, 56, 0, true).
			AddItem(nil, 0, 1, false), 11, 0, true).
		AddItem(message, 2, 0, false).
		AddItem(nil, 0, 1, false)
	return sv
}

// Name implements Component.
func (sv *SignInView) Name() string { return "Sign in" }

// Init implements Component.
func (sv *SignInView) Init() {}

// Start implements Component.
func (sv *SignInView) Start() {}

// Stop implements Component.
func (sv *SignInView) Stop() {}

// Hints implements Component.
func (sv *SignInView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Tab", Description: "Next field"},
		{Key: "Enter", Description: "Sign in"},
		{Key: "Ctrl-C", Description: "Quit"},
	}
}

// SetOnSubmit sets the callback run with the entered credentials.
func (sv *SignInView) SetOnSubmit(fn func(Credentials)) {
	sv.onSubmit = fn
}

func (sv *SignInView) submit() {
	c := sv.Credentials()
	if c.Email == "" || c.Password == "" {
		sv.ShowMessage("Email and password are required", true)
		return
	}
	if sv.onSubmit != nil {
		sv.onSubmit(c)
	}
}

// Credentials returns the current form values.
func (sv *SignInView) Credentials() Credentials {
	field := func(label string) string {
		if f, ok := sv.form.GetFormItemByLabel(label).(*tview.InputField); ok {
			return f.GetText()
		}
		return ""
	}
	return Credentials{
		Email:        field("Email"),
		Password:     field("Password"),
		CaptchaToken: field("Captcha token"),
	}
}

// Reset clears the password and captcha fields, keeping the email.
func (sv *SignInView) Reset() {
	for _, label := range []string{"Password", "Captcha token"} {
		if f, ok := sv.form.GetFormItemByLabel(label).(*tview.InputField); ok {
			f.SetText("")
		}
	}
	sv.message.Clear()
}

// ShowMessage prints a status line under the form.
func (sv *SignInView) ShowMessage(msg string, isErr bool) {
	color := sv.theme.FlashInfoColor
	if isErr {
		color = sv.theme.FlashErrColor
	}
	sv.message.Clear()
	_, _ = fmt.Fprintf(sv.message, "[%s]%s[-]", ui.Tag(color), clean(msg))
}
