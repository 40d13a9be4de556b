package mailbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// GraphConfig configures the Microsoft Graph mail client.
type GraphConfig struct {
	BaseURL       string
	AccessToken   string
	TargetMailbox string
	Timeout       time.Duration
}

// GraphGateway reads folders of TargetMailbox and creates drafts through the
// Graph REST API. Token acquisition happens outside the service.
type GraphGateway struct {
	cfg    GraphConfig
	client *http.Client
	logger *zap.Logger
}

// NewGraphGateway builds a Graph-backed gateway.
func NewGraphGateway(cfg GraphConfig, logger *zap.Logger) *GraphGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &GraphGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type graphAddress struct {
	EmailAddress struct {
		Address string `json:"address"`
		Name    string `json:"name,omitempty"`
	} `json:"emailAddress"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphMessage struct {
	ID               string       `json:"id"`
	Subject          string       `json:"subject"`
	Body             graphBody    `json:"body"`
	From             graphAddress `json:"from"`
	ReceivedDateTime time.Time    `json:"receivedDateTime"`
}

type graphMessageList struct {
	Value []graphMessage `json:"value"`
}

type graphDraft struct {
	Subject      string         `json:"subject"`
	Body         graphBody      `json:"body"`
	ToRecipients []graphAddress `json:"toRecipients"`
}

func (g *GraphGateway) FetchNew(ctx context.Context, folder Folder, limit int) ([]Message, error) {
	query := url.Values{}
	query.Set("$top", strconv.Itoa(limit))
	query.Set("$orderby", "receivedDateTime desc")
	query.Set("$select", "id,subject,body,from,receivedDateTime")
	endpoint := fmt.Sprintf("%s/users/%s/mailFolders/%s/messages?%s",
		g.cfg.BaseURL, url.PathEscape(g.cfg.TargetMailbox), url.PathEscape(string(folder)), query.Encode())

	var list graphMessageList
	if err := g.do(ctx, http.MethodGet, endpoint, nil, &list); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", folder, err)
	}

	out := make([]Message, 0, len(list.Value))
	for _, m := range list.Value {
		out = append(out, Message{
			ID:         m.ID,
			Subject:    m.Subject,
			Body:       m.Body.Content,
			Sender:     m.From.EmailAddress.Address,
			ReceivedAt: m.ReceivedDateTime.UTC(),
		})
	}
	return out, nil
}

func (g *GraphGateway) CreateOutbound(ctx context.Context, req OutboundRequest) (string, error) {
	draft := graphDraft{
		Subject: req.Subject,
		Body:    graphBody{ContentType: "HTML", Content: req.Body},
	}
	var to graphAddress
	to.EmailAddress.Address = req.to()
	draft.ToRecipients = []graphAddress{to}

	payload, err := json.Marshal(draft)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/users/%s/messages", g.cfg.BaseURL, url.PathEscape(req.Mailbox))
	var created graphMessage
	if err := g.do(ctx, http.MethodPost, endpoint, payload, &created); err != nil {
		return "", fmt.Errorf("create draft in %s: %w", req.Mailbox, err)
	}

	g.logger.Info("outbound draft created", zap.String("mailbox", req.Mailbox), zap.String("message_id", created.ID))
	return created.ID, nil
}

func (g *GraphGateway) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("graph %s returned %d: %s", method, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
