// Package twilio implements the notify.Adapter interface against the Twilio
// REST API.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/zulandar/afterhours/internal/notify"
)

// Opts configures the Twilio adapter.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Adapter sends texts and places calls through a single Twilio account.
type Adapter struct {
	client *twilio.RestClient
	from   string
}

// New builds a Twilio-backed adapter.
func New(opts Opts) (*Adapter, error) {
	if opts.AccountSID == "" || opts.AuthToken == "" {
		return nil, fmt.Errorf("twilio: account sid and auth token are required")
	}
	if opts.FromNumber == "" {
		return nil, fmt.Errorf("twilio: from number is required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: opts.AccountSID,
		Password: opts.AuthToken,
	})
	return &Adapter{client: client, from: opts.FromNumber}, nil
}

// SendText delivers an SMS. Provider rejections are folded into the Result.
func (a *Adapter) SendText(ctx context.Context, to, body string) (notify.Result, error) {
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(a.from)
	params.SetBody(body)

	msg, err := a.client.Api.CreateMessage(params)
	if err != nil {
		return failureResult(err), nil
	}

	res := notify.Result{Success: true}
	if msg.Sid != nil {
		res.ProviderSID = *msg.Sid
	}
	if msg.Status != nil {
		res.Status = strings.ToUpper(*msg.Status)
	} else {
		res.Status = "SENT"
	}
	return res, nil
}

// SendVoice places an outbound call that fetches TwiML from promptURL.
func (a *Adapter) SendVoice(ctx context.Context, to, promptURL string) (notify.Result, error) {
	params := &openapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(a.from)
	params.SetUrl(promptURL)
	params.SetMethod("POST")

	call, err := a.client.Api.CreateCall(params)
	if err != nil {
		return failureResult(err), nil
	}

	res := notify.Result{Success: true}
	if call.Sid != nil {
		res.ProviderSID = *call.Sid
	}
	if call.Status != nil {
		res.Status = strings.ToUpper(*call.Status)
	} else {
		res.Status = "INITIATED"
	}
	return res, nil
}

func failureResult(err error) notify.Result {
	res := notify.Result{Error: err.Error()}

	var restErr *twclient.TwilioRestError
	if errors.As(err, &restErr) {
		res.ErrCode = restErr.Code
	} else if strings.Contains(err.Error(), fmt.Sprint(notify.CodeCarrierBlocked)) {
		// Some transport paths surface the code only in the message text.
		res.ErrCode = notify.CodeCarrierBlocked
	}
	return res
}
