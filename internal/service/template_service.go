// internal/service/template_service.go
package service

import (
	"strings"

	"github.com/unclebandit/coursetrack-backend/internal/model"
)

const reminderSubject = "Reminder: course outcome data submission"

const reminderTemplate = `Dear {display_name},

This is a reminder to submit your course outcome data{term_clause}.{deadline_clause}{personal_clause}

Thank you,
Academic Programs Office`

func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

// RenderReminder produces the subject and body for one recipient from
// the job's template fields.
func RenderReminder(rcpt *model.Recipient, fields model.TemplateFields) (string, string) {
	termClause := ""
	if fields.Term != "" {
		termClause = " for " + fields.Term
	}
	deadlineClause := ""
	if fields.Deadline != "" {
		deadlineClause = "\n\nThe submission deadline is " + fields.Deadline + "."
	}
	personalClause := ""
	if fields.PersonalMessage != "" {
		personalClause = "\n\n" + fields.PersonalMessage
	}

	name := rcpt.DisplayName
	if name == "" {
		name = "Instructor"
	}

	body := RenderTemplate(reminderTemplate, map[string]string{
		"display_name":    name,
		"term_clause":     termClause,
		"deadline_clause": deadlineClause,
		"personal_clause": personalClause,
	})
	return reminderSubject, body
}
