package ice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/sibisee/sibisee/internal/logger"
)

// TwilioClient fetches TURN credentials from the Twilio Network Traversal Service.
type TwilioClient struct {
	client     *resty.Client
	accountSID string
	authToken  string
	mask       *strings.Replacer
}

// NewTwilioClient creates a client against baseURL (https://api.twilio.com in production).
// Every request is bounded by timeout.
func NewTwilioClient(baseURL, accountSID, authToken string, timeout time.Duration) *TwilioClient {
	mask := strings.NewReplacer()
	if accountSID != "" {
		mask = strings.NewReplacer(accountSID, "[account]")
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetBasicAuth(accountSID, authToken).
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{log: logger.S().Named("resty"), mask: mask})

	return &TwilioClient{
		client:     client,
		accountSID: accountSID,
		authToken:  authToken,
		mask:       mask,
	}
}

type tokenResponse struct {
	ICEServers []struct {
		URL        string `json:"url"`
		URLs       string `json:"urls"`
		Username   string `json:"username"`
		Credential string `json:"credential"`
	} `json:"ice_servers"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Fetch creates a new token and returns its ICE servers in provider order.
// Returned errors never carry the account SID.
func (c *TwilioClient) Fetch(ctx context.Context) ([]Server, error) {
	if c.accountSID == "" || c.authToken == "" {
		return nil, ErrNoCredentials
	}

	var (
		body    tokenResponse
		failure errorResponse
	)
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("sid", c.accountSID).
		SetResult(&body).
		SetError(&failure).
		Post("/2010-04-01/Accounts/{sid}/Tokens.json")
	if err != nil {
		// Transport errors embed the request URL, which contains the account SID.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		}
		return nil, fmt.Errorf("%w: network error", ErrUnavailable)
	}
	if resp.IsError() {
		if failure.Message != "" {
			return nil, fmt.Errorf("token service returned %d: %s", resp.StatusCode(), c.mask.Replace(failure.Message))
		}
		return nil, fmt.Errorf("token service returned %d", resp.StatusCode())
	}

	servers := make([]Server, 0, len(body.ICEServers))
	for _, s := range body.ICEServers {
		url := s.URLs
		if url == "" {
			url = s.URL
		}
		if url == "" {
			continue
		}
		servers = append(servers, Server{
			URLs:       []string{url},
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	if len(servers) == 0 {
		return nil, ErrNoServers
	}
	return servers, nil
}

// restyLogger sends resty's own messages to zap with the account SID masked.
type restyLogger struct {
	log  *zap.SugaredLogger
	mask *strings.Replacer
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.log.Error(l.mask.Replace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.log.Warn(l.mask.Replace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.log.Debug(l.mask.Replace(fmt.Sprintf(format, v...)))
}
