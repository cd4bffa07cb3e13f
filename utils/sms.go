package utils

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// TwilioSender sends SMS messages through the Twilio REST API. A nil or
// unconfigured sender is a valid no-op: notification records are still
// written, just without the SMS push.
type TwilioSender struct {
	AccountSID string
	AuthToken  string
	From       string
	Client     *http.Client
}

func NewTwilioSender(accountSID, authToken, from string) *TwilioSender {
	return &TwilioSender{
		AccountSID: accountSID,
		AuthToken:  authToken,
		From:       from,
		Client:     &http.Client{},
	}
}

// Configured reports whether credentials are present.
func (t *TwilioSender) Configured() bool {
	return t != nil && t.AccountSID != "" && t.AuthToken != "" && t.From != ""
}

// Send posts one message to the Twilio Messages endpoint.
func (t *TwilioSender) Send(ctx context.Context, to, body string) error {
	if !t.Configured() {
		return fmt.Errorf("twilio not configured")
	}

	apiURL := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", t.AccountSID)

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.From)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.AccountSID, t.AuthToken)

	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("twilio API error: %s", resp.Status)
	}

	return nil
}
