package runs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dotcommander/capmux/internal/config"
	"github.com/dotcommander/capmux/internal/errs"
	"github.com/dotcommander/capmux/internal/proto"
	"github.com/dotcommander/capmux/internal/reasoning"
)

// HostedConfig configures a Hosted client.
type HostedConfig struct {
	Endpoint   string
	APIVersion string
	Token      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Hosted is a REST client for a hosted agents service exposing threads,
// messages and runs.
type Hosted struct {
	base       *url.URL
	apiVersion string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHosted returns a client for the service at cfg.Endpoint.
func NewHosted(cfg HostedConfig) (*Hosted, error) {
	if cfg.Endpoint == "" {
		return nil, errs.Error{Reason: "No hosted agents endpoint configured.", Err: errs.UserErrorf("Set runs.endpoint through capmux config edit.")}
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.Endpoint, "/"))
	if err != nil {
		return nil, errs.Error{Err: err, Reason: "Invalid hosted agents endpoint."}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Hosted{
		base:       base,
		apiVersion: cfg.APIVersion,
		token:      cfg.Token,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger.With("component", "runs.hosted"),
	}, nil
}

// HostedFromConfig builds a Hosted client from the runs settings, reading
// the token from api-key-env or api-key-cmd.
func HostedFromConfig(ctx context.Context, cfg config.Runs, logger *slog.Logger) (*Hosted, error) {
	token := ""
	if cfg.APIKeyEnv != "" {
		token = os.Getenv(cfg.APIKeyEnv)
	}
	if token == "" && cfg.APIKeyCmd != "" {
		out, err := reasoning.RunKeyCmd(ctx, cfg.APIKeyCmd)
		if err != nil {
			return nil, err
		}
		token = out
	}
	if token == "" {
		return nil, errs.Error{
			Reason: "The hosted agents service needs a token.",
			Err:    errs.UserErrorf("Set runs.api-key-env or runs.api-key-cmd through capmux config edit."),
		}
	}
	return NewHosted(HostedConfig{
		Endpoint:   cfg.Endpoint,
		APIVersion: cfg.APIVersion,
		Token:      token,
		Logger:     logger,
	})
}

type wireThread struct {
	ID string `json:"id"`
}

type wireRun struct {
	ID          string `json:"id"`
	ThreadID    string `json:"thread_id"`
	AssistantID string `json:"assistant_id"`
	Status      string `json:"status"`
	LastError   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

type wireMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	CreatedAt int64  `json:"created_at"`
	Content   []struct {
		Type string `json:"type"`
		Text *struct {
			Value string `json:"value"`
		} `json:"text"`
		ImageFile *struct {
			FileID string `json:"file_id"`
		} `json:"image_file"`
	} `json:"content"`
}

type wireMessages struct {
	Data    []wireMessage `json:"data"`
	HasMore bool          `json:"has_more"`
	LastID  string        `json:"last_id"`
}

// CreateThread implements Provider.
func (h *Hosted) CreateThread(ctx context.Context) (string, error) {
	var th wireThread
	if err := h.do(ctx, http.MethodPost, "/threads", nil, map[string]any{}, &th); err != nil {
		return "", err
	}
	return th.ID, nil
}

// PostMessage implements Provider.
func (h *Hosted) PostMessage(ctx context.Context, threadID string, role proto.Role, text string) error {
	body := map[string]any{"role": string(role), "content": text}
	return h.do(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/messages", nil, body, nil)
}

// CreateRun implements Provider.
func (h *Hosted) CreateRun(ctx context.Context, threadID, agentID, instructions string) (RunRecord, error) {
	body := map[string]any{"assistant_id": agentID}
	if instructions != "" {
		body["additional_instructions"] = instructions
	}
	var run wireRun
	if err := h.do(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/runs", nil, body, &run); err != nil {
		return RunRecord{}, err
	}
	return run.record(threadID), nil
}

// GetRun implements Provider.
func (h *Hosted) GetRun(ctx context.Context, threadID, runID string) (RunRecord, error) {
	var run wireRun
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID)
	if err := h.do(ctx, http.MethodGet, path, nil, nil, &run); err != nil {
		return RunRecord{}, err
	}
	return run.record(threadID), nil
}

// GetMessages implements Provider. It follows pagination until the thread
// is exhausted.
func (h *Hosted) GetMessages(ctx context.Context, threadID string) ([]Message, error) {
	var out []Message
	query := url.Values{"order": {"asc"}, "limit": {"100"}}
	for {
		var page wireMessages
		if err := h.do(ctx, http.MethodGet, "/threads/"+url.PathEscape(threadID)+"/messages", query, nil, &page); err != nil {
			return nil, err
		}
		for _, m := range page.Data {
			out = append(out, m.message())
		}
		if !page.HasMore || page.LastID == "" {
			return out, nil
		}
		query.Set("after", page.LastID)
	}
}

func (h *Hosted) do(ctx context.Context, method, path string, query url.Values, body, result any) error {
	u := *h.base
	u.Path += path
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	if h.apiVersion != "" {
		q.Set("api-version", h.apiVersion)
	}
	u.RawQuery = q.Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if isTimeout(err) {
			return fmt.Errorf("%w: %s %s: %w", errs.ErrTimeout, method, path, err)
		}
		return fmt.Errorf("%w: %s %s: %w", errs.ErrConnection, method, path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: status %d: %s", errs.ErrProviderFault, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: decode %s: %w", errs.ErrProviderFault, path, err)
	}
	return nil
}

// isTimeout reports whether a transport error came from the client's own
// deadline rather than the caller's context.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var uerr *url.Error
	return errors.As(err, &uerr) && uerr.Timeout()
}

func (r wireRun) record(threadID string) RunRecord {
	rec := RunRecord{ID: r.ID, ThreadID: r.ThreadID, AgentID: r.AssistantID}
	if rec.ThreadID == "" {
		rec.ThreadID = threadID
	}
	rec.Status, rec.Error = parseStatus(r.Status)
	if r.LastError != nil && r.LastError.Message != "" {
		rec.Error = r.LastError.Message
	}
	return rec
}

// parseStatus maps the service's status strings onto RunStatus. Cancelled
// and expired runs are failures.
func parseStatus(s string) (RunStatus, string) {
	switch s {
	case "queued":
		return Queued, ""
	case "in_progress", "cancelling":
		return InProgress, ""
	case "requires_action":
		return RequiresAction, ""
	case "completed":
		return Completed, ""
	case "failed":
		return Failed, "run failed"
	case "cancelled":
		return Failed, "run was cancelled"
	case "expired":
		return Failed, "run expired"
	default:
		return Failed, fmt.Sprintf("unknown run status %q", s)
	}
}

func (m wireMessage) message() Message {
	msg := Message{ID: m.ID, Role: proto.Role(m.Role), CreatedAt: time.Unix(m.CreatedAt, 0)}
	for _, c := range m.Content {
		switch {
		case c.Type == "text" && c.Text != nil:
			msg.Content = append(msg.Content, ContentItem{Kind: Text, Text: c.Text.Value})
		case c.Type == "image_file" && c.ImageFile != nil:
			msg.Content = append(msg.Content, ContentItem{Kind: Image, FileID: c.ImageFile.FileID})
		}
	}
	return msg
}
