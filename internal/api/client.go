package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client provides HTTP client functionality for the exam backend API.
type Client struct {
	config     Config
	httpClient *http.Client
}

// Config contains backend client configuration.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// CreateSessionRequest creates a new exam session for one participant.
type CreateSessionRequest struct {
	PatientID  string         `json:"patient_id"`
	Instrument string         `json:"instrument"`
	Config     map[string]any `json:"config"`
}

// Question is one instrument question. Immutable once fetched.
type Question struct {
	QuestionID        string `json:"question_id"`
	Text              string `json:"text"`
	AudioURL          string `json:"audio_url"`
	ImageURL          string `json:"image_url,omitempty"`
	ManualConfirm     bool   `json:"manual_confirm,omitempty"`
	RecordingDisabled bool   `json:"recording_disabled,omitempty"`
}

// Progress is the server-side completion state of a session. TotalQuestions
// is nil until the backend knows the instrument length.
type Progress struct {
	Answered       int  `json:"answered"`
	TotalQuestions *int `json:"total_questions"`
	IsComplete     bool `json:"is_complete"`
}

// UploadRequest packages one response blob plus scoring metadata.
type UploadRequest struct {
	QuestionID string
	Audio      []byte
	Filename   string

	ReactionTime time.Duration
	HasReaction  bool

	// ManualConfirmed is sent only when non-nil.
	ManualConfirmed *bool
}

// UploadResult is the parsed outcome of a response upload.
type UploadResult struct {
	ResponseID string `json:"response_id"`
	Transcript string `json:"transcript"`
}

// NewClient creates a backend API client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.UserAgent == "" {
		config.UserAgent = "CogScreen-AI/1.0"
	}

	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{config: config, httpClient: httpClient}, nil
}

// CreateSession posts participant identity, instrument, and configuration
// and returns the new session id.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (string, error) {
	const op = "create_session"

	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := c.postJSON(ctx, op, "/sessions", req, &resp); err != nil {
		return "", err
	}

	if resp.SessionID == "" {
		return "", dataErr(op, fmt.Errorf("no session id returned"))
	}

	return resp.SessionID, nil
}

// NextQuestion requests the next question for the session. The backend does
// not advance its cursor for repeated calls while an answer is outstanding;
// it replies with the same question id instead.
func (c *Client) NextQuestion(ctx context.Context, sessionID string) (*Question, error) {
	const op = "next_question"

	var q Question
	if err := c.getJSON(ctx, op, "/sessions/"+sessionID+"/next", &q); err != nil {
		return nil, err
	}

	if q.QuestionID == "" {
		return nil, dataErr(op, fmt.Errorf("no question id returned"))
	}

	return &q, nil
}

// Progress queries the session's answered count and completion flag.
func (c *Client) Progress(ctx context.Context, sessionID string) (*Progress, error) {
	const op = "progress"

	var p Progress
	if err := c.getJSON(ctx, op, "/sessions/"+sessionID+"/progress", &p); err != nil {
		return nil, err
	}

	return &p, nil
}

// UploadResponse posts a multipart response blob with scoring metadata and
// returns the parsed transcript.
func (c *Client) UploadResponse(ctx context.Context, sessionID string, req UploadRequest) (*UploadResult, error) {
	const op = "upload_response"

	if req.QuestionID == "" {
		return nil, dataErr(op, fmt.Errorf("question id cannot be empty"))
	}

	if len(req.Audio) == 0 {
		return nil, dataErr(op, fmt.Errorf("audio payload cannot be empty"))
	}

	filename := req.Filename
	if filename == "" {
		filename = "response.wav"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fileWriter, err := writer.CreateFormFile("audio", filename)
	if err != nil {
		return nil, dataErr(op, fmt.Errorf("failed to create form file: %w", err))
	}
	if _, err := fileWriter.Write(req.Audio); err != nil {
		return nil, dataErr(op, fmt.Errorf("failed to write audio data: %w", err))
	}
	if err := writer.WriteField("question_id", req.QuestionID); err != nil {
		return nil, dataErr(op, fmt.Errorf("failed to write field question_id: %w", err))
	}
	if err := writer.Close(); err != nil {
		return nil, dataErr(op, fmt.Errorf("failed to close multipart writer: %w", err))
	}

	query := url.Values{}
	query.Set("question_id", req.QuestionID)
	if req.HasReaction {
		query.Set("reaction_time_vad_ms", fmt.Sprintf("%.2f", float64(req.ReactionTime)/float64(time.Millisecond)))
	}
	if req.ManualConfirmed != nil {
		query.Set("manual_confirmed", fmt.Sprintf("%t", *req.ManualConfirmed))
	}

	endpoint := c.config.BaseURL + "/sessions/" + sessionID + "/responses?" + query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, dataErr(op, fmt.Errorf("failed to create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)

	respBody, err := c.do(op, httpReq)
	if err != nil {
		return nil, err
	}

	var result UploadResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, dataErr(op, fmt.Errorf("failed to parse response JSON: %w", err))
	}

	return &result, nil
}

// SubmitReport asks the backend to score the session and persist its report.
func (c *Client) SubmitReport(ctx context.Context, sessionID string) error {
	const op = "submit_report"
	return c.postJSON(ctx, op, "/sessions/"+sessionID+"/submit", nil, nil)
}

// Report fetches the scored report for a completed session.
func (c *Client) Report(ctx context.Context, sessionID string) (json.RawMessage, error) {
	const op = "report"

	httpReq, err := c.newRequest(ctx, op, http.MethodGet, "/sessions/"+sessionID+"/report", nil)
	if err != nil {
		return nil, err
	}

	respBody, err := c.do(op, httpReq)
	if err != nil {
		return nil, err
	}

	return json.RawMessage(respBody), nil
}

func (c *Client) newRequest(ctx context.Context, op, method, path string, body io.Reader) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return nil, dataErr(op, fmt.Errorf("failed to create HTTP request: %w", err))
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	return httpReq, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	httpReq, err := c.newRequest(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	respBody, err := c.do(op, httpReq)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return dataErr(op, fmt.Errorf("failed to parse response JSON: %w", err))
	}

	return nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return dataErr(op, fmt.Errorf("failed to encode request: %w", err))
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := c.newRequest(ctx, op, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	respBody, err := c.do(op, httpReq)
	if err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return dataErr(op, fmt.Errorf("failed to parse response JSON: %w", err))
		}
	}

	return nil
}

func (c *Client) do(op string, req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportErr(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportErr(op, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, serverErr(op, resp.StatusCode, respBody)
	}

	return respBody, nil
}
