package notifications

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// TwilioClient places voice calls through the Twilio REST API
type TwilioClient struct {
	baseURL    string
	accountSID string
	authToken  string
	fromNumber string
	language   string
	voice      string
	client     *resty.Client
}

// Ensure TwilioClient implements VoiceChannel
var _ VoiceChannel = (*TwilioClient)(nil)

// TwilioConfig holds the credentials and voice settings for calls
type TwilioConfig struct {
	APIURL     string
	AccountSID string
	AuthToken  string
	FromNumber string
	Language   string
	Voice      string
	Timeout    time.Duration
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Say     twimlSay `xml:"Say"`
}

type twimlSay struct {
	Voice    string `xml:"voice,attr,omitempty"`
	Language string `xml:"language,attr,omitempty"`
	Text     string `xml:",chardata"`
}

type twilioCall struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewTwilioClient creates a Twilio voice client
func NewTwilioClient(cfg TwilioConfig) *TwilioClient {
	return &TwilioClient{
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.FromNumber,
		language:   cfg.Language,
		voice:      cfg.Voice,
		client:     resty.New().SetTimeout(cfg.Timeout),
	}
}

// Call dials address and reads spokenText when answered
func (c *TwilioClient) Call(ctx context.Context, address, spokenText string) error {
	if address == "" {
		return fmt.Errorf("phone number is required")
	}

	twiml, err := c.TwiML(spokenText)
	if err != nil {
		return err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBasicAuth(c.accountSID, c.authToken).
		SetFormData(map[string]string{
			"To":    address,
			"From":  c.fromNumber,
			"Twiml": twiml,
		}).
		Post(fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", c.baseURL, c.accountSID))
	if err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}

	if resp.StatusCode() != 200 && resp.StatusCode() != 201 {
		var apiErr twilioError
		if err := json.Unmarshal(resp.Body(), &apiErr); err != nil || apiErr.Message == "" {
			return fmt.Errorf("twilio returned status %d: %s", resp.StatusCode(), string(resp.Body()))
		}
		return fmt.Errorf("twilio error %d: %s", apiErr.Code, apiErr.Message)
	}

	var call twilioCall
	if err := json.Unmarshal(resp.Body(), &call); err != nil {
		return fmt.Errorf("failed to decode Twilio response: %w", err)
	}

	logrus.Debugf("Call to %s queued with SID %s (%s)", address, call.SID, call.Status)
	return nil
}

// TwiML renders the call instructions for spokenText
func (c *TwilioClient) TwiML(spokenText string) (string, error) {
	data, err := xml.Marshal(twimlResponse{
		Say: twimlSay{Voice: c.voice, Language: c.language, Text: spokenText},
	})
	if err != nil {
		return "", fmt.Errorf("failed to render TwiML: %w", err)
	}
	return string(data), nil
}
