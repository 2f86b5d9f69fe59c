package task

import "github.com/seantiz/modeld/internal/model"

// PrimaryArtifact is the attachment name of the rendered results document.
const PrimaryArtifact = model.DocumentOutput

// Attachment is one file carried by a notification.
type Attachment struct {
	Name string
	Data []byte
}

// Notification is an email ready to hand to a transport. The lifecycle only
// builds it; delivery is the caller's job.
type Notification struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// AttachmentNames returns the attachment file names in order.
func (n Notification) AttachmentNames() []string {
	if len(n.Attachments) == 0 {
		return nil
	}
	names := make([]string, len(n.Attachments))
	for i, a := range n.Attachments {
		names[i] = a.Name
	}
	return names
}

// Messages holds the subjects and bodies used for notifications. ResultsBody
// is a text/template executed with DocumentData; the failure message is
// fixed text.
type Messages struct {
	ResultsSubject string
	ResultsBody    string
	FailureSubject string
	FailureBody    string
}

// DefaultMessages returns the built-in notification texts.
func DefaultMessages() Messages {
	return Messages{
		ResultsSubject: "Model run results",
		ResultsBody:    "Your {{.Model.FullName}} run has finished. The results are attached.\n\n{{.ParameterText}}",
		FailureSubject: "Model run failed",
		FailureBody:    "Your model run could not be completed. The failure has been recorded; please try submitting it again later.",
	}
}

// withDefaults fills empty fields from DefaultMessages.
func (m Messages) withDefaults() Messages {
	d := DefaultMessages()
	if m.ResultsSubject == "" {
		m.ResultsSubject = d.ResultsSubject
	}
	if m.ResultsBody == "" {
		m.ResultsBody = d.ResultsBody
	}
	if m.FailureSubject == "" {
		m.FailureSubject = d.FailureSubject
	}
	if m.FailureBody == "" {
		m.FailureBody = d.FailureBody
	}
	return m
}
