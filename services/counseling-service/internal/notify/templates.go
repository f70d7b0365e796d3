package notify

import (
	"bytes"
	"fmt"
	"html/template"
	texttemplate "text/template"
)

type Template string

const (
	TemplateApprovedMember       Template = "approved_member"
	TemplateApprovedCounselor    Template = "approved_counselor"
	TemplateRejectedMember       Template = "rejected_member"
	TemplateRescheduledMember    Template = "rescheduled_member"
	TemplateRescheduledCounselor Template = "rescheduled_counselor"
	TemplateCanceledMember       Template = "canceled_member"
	TemplateCanceledCounselor    Template = "canceled_counselor"
	TemplateNewRequestCounselor  Template = "new_request_counselor"
)

// MessageData feeds every template. Dates are preformatted in the church's
// zone by the caller.
type MessageData struct {
	MemberName    string
	CounselorName string
	Topic         string
	Date          string
	PreviousDate  string
	Reason        string
}

var subjects = map[Template]string{
	TemplateApprovedMember:       "Seu aconselhamento foi confirmado",
	TemplateApprovedCounselor:    "Aconselhamento confirmado: {{.MemberName}}",
	TemplateRejectedMember:       "Atualização sobre sua solicitação de aconselhamento",
	TemplateRescheduledMember:    "Seu aconselhamento foi reagendado",
	TemplateRescheduledCounselor: "Aconselhamento reagendado: {{.MemberName}}",
	TemplateCanceledMember:       "Seu aconselhamento foi cancelado",
	TemplateCanceledCounselor:    "Aconselhamento cancelado: {{.MemberName}}",
	TemplateNewRequestCounselor:  "Nova solicitação de aconselhamento",
}

const layout = `{{define "layout"}}<!DOCTYPE html>
<html lang="pt-BR"><body style="font-family:Arial,sans-serif;color:#333">
{{template "content" .}}
<p style="color:#888;font-size:12px">Esta é uma mensagem automática do ministério de aconselhamento.</p>
</body></html>{{end}}`

var bodies = map[Template]string{
	TemplateApprovedMember: `<p>Olá, {{.MemberName}}.</p>
<p>Seu aconselhamento com <strong>{{.CounselorName}}</strong> foi confirmado para <strong>{{.Date}}</strong>.</p>`,
	TemplateApprovedCounselor: `<p>Olá, {{.CounselorName}}.</p>
<p>Você confirmou o aconselhamento de <strong>{{.MemberName}}</strong> para <strong>{{.Date}}</strong>.</p>
{{if .Topic}}<p>Assunto: {{.Topic}}</p>{{end}}`,
	TemplateRejectedMember: `<p>Olá, {{.MemberName}}.</p>
<p>Sua solicitação não pôde ser atendida pelo conselheiro escolhido e voltou para a fila. Em breve outro conselheiro entrará em contato.</p>
{{if .Reason}}<p>Motivo: {{.Reason}}</p>{{end}}`,
	TemplateRescheduledMember: `<p>Olá, {{.MemberName}}.</p>
<p>Seu aconselhamento com <strong>{{.CounselorName}}</strong> foi reagendado de {{.PreviousDate}} para <strong>{{.Date}}</strong>.</p>`,
	TemplateRescheduledCounselor: `<p>Olá, {{.CounselorName}}.</p>
<p>O aconselhamento de <strong>{{.MemberName}}</strong> foi reagendado de {{.PreviousDate}} para <strong>{{.Date}}</strong>.</p>`,
	TemplateCanceledMember: `<p>Olá, {{.MemberName}}.</p>
<p>Seu aconselhamento{{if .Date}} de {{.Date}}{{end}} foi cancelado.</p>
{{if .Reason}}<p>Motivo: {{.Reason}}</p>{{end}}`,
	TemplateCanceledCounselor: `<p>Olá, {{.CounselorName}}.</p>
<p>O aconselhamento de <strong>{{.MemberName}}</strong>{{if .Date}} em {{.Date}}{{end}} foi cancelado.</p>
{{if .Reason}}<p>Motivo: {{.Reason}}</p>{{end}}`,
	TemplateNewRequestCounselor: `<p>Olá, {{.CounselorName}}.</p>
<p><strong>{{.MemberName}}</strong> solicitou um aconselhamento para <strong>{{.Date}}</strong>. Acesse o sistema para aprovar ou recusar.</p>`,
}

var chatTexts = map[Template]string{
	TemplateApprovedCounselor: "Olá {{.CounselorName}}! Aconselhamento confirmado com {{.MemberName}} em {{.Date}}.",
}

var (
	htmlTemplates = map[Template]*template.Template{}
	textTemplates = map[Template]*texttemplate.Template{}
	subjectTmpls  = map[Template]*texttemplate.Template{}
)

func init() {
	base := template.Must(template.New("layout").Parse(layout))
	for name, body := range bodies {
		t := template.Must(template.Must(base.Clone()).New("content").Parse(body))
		htmlTemplates[name] = t
		subjectTmpls[name] = texttemplate.Must(texttemplate.New(string(name)).Parse(subjects[name]))
	}
	for name, text := range chatTexts {
		textTemplates[name] = texttemplate.Must(texttemplate.New(string(name)).Parse(text))
	}
}

// RenderEmail returns the subject and HTML body of an email template.
func RenderEmail(name Template, data MessageData) (string, string, error) {
	t, ok := htmlTemplates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}
	var subject, body bytes.Buffer
	if err := subjectTmpls[name].Execute(&subject, data); err != nil {
		return "", "", err
	}
	if err := t.ExecuteTemplate(&body, "layout", data); err != nil {
		return "", "", err
	}
	return subject.String(), body.String(), nil
}

// RenderChat returns the plain text of a chat template.
func RenderChat(name Template, data MessageData) (string, error) {
	t, ok := textTemplates[name]
	if !ok {
		return "", fmt.Errorf("unknown chat template %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
