// File: internal/mailbox/wire.go
package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// GraphQL documents accepted by the DropMail-compatible API. The auth token
// rides in the URL path, not in these bodies.
const (
	queryDomains = `query { domains { id name availableVia } }`

	querySessionStatus = `query($sessionId: ID!) { session(id: $sessionId) { id expiresAt } }`

	queryMails = `query($sessionId: ID!) {
  session(id: $sessionId) {
    mails { id, fromAddr, toAddr, headerSubject, text, html, receivedAt, rawSize, downloadUrl }
  }
}`

	queryMailsAfter = `query($sessionId: ID!, $mailId: ID!) {
  session(id: $sessionId) {
    mailsAfterId(mailId: $mailId) { id, fromAddr, toAddr, headerSubject, text, html, receivedAt, rawSize, downloadUrl }
  }
}`

	mutationIntroduceSession = `mutation {
  introduceSession { id, expiresAt, addresses { id, address, restoreKey } }
}`

	mutationIntroduceSessionWithDomain = `mutation($domainId: ID!) {
  introduceSession(input: {withAddress: true, domainId: $domainId}) { id, expiresAt, addresses { id, address, restoreKey } }
}`

	mutationIntroduceAddress = `mutation($sessionId: ID!, $domainId: ID!) {
  introduceAddress(input: {sessionId: $sessionId, domainId: $domainId}) { id, address, restoreKey }
}`

	mutationRestoreAddress = `mutation($input: RestoreAddressInput!) {
  restoreAddress(input: $input) { id address restoreKey }
}`
)

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type addressPayload struct {
	ID         string `json:"id"`
	Address    string `json:"address"`
	RestoreKey string `json:"restoreKey"`
}

type sessionPayload struct {
	ID        string           `json:"id"`
	ExpiresAt time.Time        `json:"expiresAt"`
	Addresses []addressPayload `json:"addresses"`
}

type mailboxPayload struct {
	Mails        []Mail `json:"mails"`
	MailsAfterID []Mail `json:"mailsAfterId"`
}

// do posts one GraphQL document to <base_url>/<auth_token> and decodes the
// data field into out. Transport failures and 5xx responses are retried with
// a fixed backoff up to the configured attempt count; a GraphQL errors
// payload or a 4xx status is definitive and surfaces as *APIError with no
// retry.
func (c *Client) do(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	return c.doAs(ctx, c.token(), query, variables, out)
}

// doAs is do under an explicit auth token, for requests against a session the
// client has not adopted.
func (c *Client) doAs(ctx context.Context, token, query string, variables map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("encoding graphql request: %w", err)
	}
	endpoint := c.baseURL + "/" + token

	attempts := c.maxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		retry, err := c.post(ctx, endpoint, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
		c.log.Debug("Mailbox request failed, retrying.",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err))
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryBackoff):
		}
	}
	return fmt.Errorf("mailbox request failed after %d attempts: %w", attempts, lastErr)
}

// post performs a single request. The boolean reports whether the failure is
// transient and worth retrying.
func (c *Client) post(ctx context.Context, endpoint string, body []byte, out interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("building mailbox request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("posting to mailbox api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return true, &APIError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return false, &APIError{StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, fmt.Errorf("reading mailbox response: %w", err)
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return false, fmt.Errorf("parsing mailbox response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			messages = append(messages, e.Message)
		}
		return false, &APIError{StatusCode: resp.StatusCode, Messages: messages}
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return false, fmt.Errorf("parsing mailbox response data: %w", err)
		}
	}
	return false, nil
}
