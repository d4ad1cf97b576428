package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/smtp"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	dysmsapi20170525 "github.com/alibabacloud-go/dysmsapi-20170525/v5/client"
	util "github.com/alibabacloud-go/tea-utils/v2/service"
	"github.com/alibabacloud-go/tea/tea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-fulfillment/pkg/config"
)

type fakeResult struct {
	id  string
	err error
}

func (r fakeResult) Get(context.Context) (string, error) { return r.id, r.err }

type fakePublisher struct {
	msgs []*gcppubsub.Message
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.msgs = append(p.msgs, msg)
	return fakeResult{id: "msg-1", err: p.err}
}

func TestPubSubProviderPublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	provider := NewPubSubProvider(pub)
	msg := placedMessage()

	require.NoError(t, provider.Send(context.Background(), msg))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "order_placed", pub.msgs[0].Attributes["kind"])

	var envelope notificationEnvelope
	require.NoError(t, json.Unmarshal(pub.msgs[0].Data, &envelope))
	assert.Equal(t, msg.RecipientID.String(), envelope.RecipientID)
	assert.Equal(t, msg.OrderID.String(), envelope.OrderID)
	assert.Equal(t, "Order placed", envelope.Title)
}

func TestPubSubProviderPublishFailure(t *testing.T) {
	provider := NewPubSubProvider(&fakePublisher{err: errors.New("unavailable")})
	err := provider.Send(context.Background(), placedMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
}

type fakeSMSClient struct {
	req  *dysmsapi20170525.SendSmsRequest
	resp *dysmsapi20170525.SendSmsResponse
	err  error
}

func (f *fakeSMSClient) SendSmsWithOptions(req *dysmsapi20170525.SendSmsRequest, _ *util.RuntimeOptions) (*dysmsapi20170525.SendSmsResponse, error) {
	f.req = req
	return f.resp, f.err
}

func smsResponse(code, message string) *dysmsapi20170525.SendSmsResponse {
	return &dysmsapi20170525.SendSmsResponse{
		Body: &dysmsapi20170525.SendSmsResponseBody{Code: tea.String(code), Message: tea.String(message)},
	}
}

func TestSMSProviderRequiresPhone(t *testing.T) {
	provider := newSMSProvider(&fakeSMSClient{}, "Shop", "SMS_1")
	err := provider.Send(context.Background(), placedMessage())
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestSMSProviderSends(t *testing.T) {
	client := &fakeSMSClient{resp: smsResponse("OK", "OK")}
	provider := newSMSProvider(client, "Shop", "SMS_1")
	msg := placedMessage()
	msg.Phone = "9876543210"

	require.NoError(t, provider.Send(context.Background(), msg))
	require.NotNil(t, client.req)
	assert.Equal(t, "9876543210", tea.StringValue(client.req.PhoneNumbers))
	assert.Equal(t, "Shop", tea.StringValue(client.req.SignName))
	assert.Equal(t, "SMS_1", tea.StringValue(client.req.TemplateCode))

	var params map[string]string
	require.NoError(t, json.Unmarshal([]byte(tea.StringValue(client.req.TemplateParam)), &params))
	assert.Equal(t, "Order placed", params["title"])
}

func TestSMSProviderRejectedCode(t *testing.T) {
	provider := newSMSProvider(&fakeSMSClient{resp: smsResponse("isv.BUSINESS_LIMIT_CONTROL", "limit")}, "Shop", "SMS_1")
	msg := placedMessage()
	msg.Phone = "9876543210"

	err := provider.Send(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BUSINESS_LIMIT_CONTROL")
}

func TestSMSProviderSDKError(t *testing.T) {
	provider := newSMSProvider(&fakeSMSClient{err: &tea.SDKError{Message: tea.String("signature mismatch")}}, "Shop", "SMS_1")
	msg := placedMessage()
	msg.Phone = "9876543210"

	err := provider.Send(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature mismatch")
}

func TestSMTPProviderComposesMail(t *testing.T) {
	provider := NewSMTPProvider(config.NotificationsConfig{
		SMTPHost:     "mail.example.com",
		SMTPPort:     2525,
		SMTPUsername: "user",
		SMTPPassword: "pass",
		SMTPFrom:     "shop@example.com",
	})
	var (
		gotAddr string
		gotTo   []string
		gotBody string
		gotAuth smtp.Auth
	)
	provider.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotBody, gotAuth = addr, to, string(msg), a
		return nil
	}

	msg := placedMessage()
	msg.Title = "Order placed\r\nBcc: evil@example.com"
	require.NoError(t, provider.Send(context.Background(), msg))

	assert.Equal(t, "mail.example.com:2525", gotAddr)
	assert.Equal(t, []string{"buyer@example.com"}, gotTo)
	assert.NotNil(t, gotAuth)
	assert.Contains(t, gotBody, "Subject: Order placed  Bcc: evil@example.com\r\n")
	assert.Contains(t, gotBody, "From: shop@example.com\r\n")
	assert.NotContains(t, gotBody, "\r\nBcc:")
}

func TestSMTPProviderRequiresEmail(t *testing.T) {
	provider := NewSMTPProvider(config.NotificationsConfig{SMTPHost: "mail.example.com"})
	msg := placedMessage()
	msg.Email = ""
	assert.ErrorIs(t, provider.Send(context.Background(), msg), ErrNoRoute)
}

func TestBuildProviders(t *testing.T) {
	cfg := config.NotificationsConfig{
		Providers: []string{"pubsub", "sms", "smtp"},
		SMTPHost:  "mail.example.com",
	}
	providers, err := BuildProviders(cfg, nil)
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, ProviderSMTP, providers[0].Name())

	_, err = BuildProviders(config.NotificationsConfig{Providers: []string{"fax"}}, nil)
	require.Error(t, err)

	_, err = BuildProviders(config.NotificationsConfig{Providers: []string{"smtp"}}, nil)
	require.Error(t, err)
}
