package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"time"
)

// OTPData feeds the delivery OTP template.
type OTPData struct {
	OrderID   string
	Code      string
	ExpiresIn time.Duration
}

var deliveryOTPTmpl = htmltemplate.Must(htmltemplate.New("delivery_otp").Parse(deliveryOTPTemplate))

// DeliveryOTPMessage renders the message carrying a delivery confirmation code.
func DeliveryOTPMessage(to string, data OTPData) (Message, error) {
	var body bytes.Buffer
	if err := deliveryOTPTmpl.Execute(&body, struct {
		OTPData
		Minutes int
	}{data, int(data.ExpiresIn.Minutes())}); err != nil {
		return Message{}, fmt.Errorf("render otp email: %w", err)
	}
	return Message{
		To:      to,
		Subject: "Your delivery confirmation code",
		Text: fmt.Sprintf("Share code %s with your delivery agent to confirm order %s. It expires in %d minutes.",
			data.Code, data.OrderID, int(data.ExpiresIn.Minutes())),
		HTML: body.String(),
	}, nil
}

const deliveryOTPTemplate = `
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
	<h2>Your order is almost there</h2>
	<p>Share this code with the delivery agent to confirm order {{.OrderID}}:</p>
	<p style="font-size: 24px; letter-spacing: 4px;"><strong>{{.Code}}</strong></p>
	<p>The code expires in {{.Minutes}} minutes. Never share it before the parcel is in your hands.</p>
</body>
</html>
`
