package dispatcher

import (
	"fmt"

	"github.com/BearBump/ShipAlert/internal/integrations/notify"
	"github.com/BearBump/ShipAlert/internal/models"
)

func delayPhrase(days int) string {
	if days == 1 {
		return "1 day"
	}
	if days == 0 {
		// DELAYED/EXCEPTION статус при неподвинутой дате.
		return "a bit"
	}
	return fmt.Sprintf("%d days", days)
}

func renderSMS(p models.NotificationPayload) notify.SmsPayload {
	text := fmt.Sprintf("Order %s update: shipment %s is running %s late.",
		p.OrderID, p.TrackingNumber, delayPhrase(p.DelayDays))
	if p.NewEstimate != nil {
		text += fmt.Sprintf(" New estimated delivery: %s.", p.NewEstimate.Format("Jan 2"))
	}
	return notify.SmsPayload{To: p.Contact.PhoneNumber, Text: text}
}

func renderEmail(p models.NotificationPayload) notify.EmailPayload {
	subject := fmt.Sprintf("Delivery update for order %s", p.OrderID)

	body := fmt.Sprintf(
		"<p>Your order <b>%s</b> is running %s behind schedule.</p>"+
			"<p>Tracking number: %s (%s)</p>",
		p.OrderID, delayPhrase(p.DelayDays), p.TrackingNumber, p.CarrierCode)
	if p.NewEstimate != nil {
		body += fmt.Sprintf("<p>New estimated delivery date: <b>%s</b>.</p>",
			p.NewEstimate.Format("January 2, 2006"))
	}

	return notify.EmailPayload{To: p.Contact.Email, Subject: subject, Body: body}
}
