package notify

import (
	"fmt"
	"time"
)

// AppointmentReminderEmail builds the reminder message for an upcoming visit.
func AppointmentReminderEmail(toEmail, toName, practiceName, provider string, startsAt time.Time) EmailMessage {
	when := startsAt.Format("Monday, January 2 at 3:04 PM")
	body := fmt.Sprintf(
		"Hi %s,\n\nThis is a reminder of your upcoming appointment with %s at %s on %s.\n\nIf you need to reschedule, please call the office.\n",
		toName, provider, practiceName, when)
	return EmailMessage{
		To:      toEmail,
		ToName:  toName,
		Subject: fmt.Sprintf("Appointment reminder: %s", when),
		Body:    body,
	}
}

// MFAChangedEmail notifies the account owner that two-factor settings changed.
// Sent on enable and disable so an account takeover is visible to the owner.
func MFAChangedEmail(toEmail string, enabled bool) EmailMessage {
	action := "enabled"
	if !enabled {
		action = "disabled"
	}
	return EmailMessage{
		To:      toEmail,
		Subject: fmt.Sprintf("Two-factor authentication %s on your account", action),
		Body: fmt.Sprintf(
			"Two-factor authentication was %s on your Clearwell Health account.\n\nIf you did not make this change, contact support immediately.\n",
			action),
	}
}
