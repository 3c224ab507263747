package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"exam-proctor-agent/internal/dto"
)

func (c *Client) admin(ctx context.Context, method, path string, body, out any) error {
	raw, err := c.send(ctx, method, path, body, true)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) Summary(ctx context.Context) (*dto.AdminSummaryResponse, error) {
	var res dto.AdminSummaryResponse
	if err := c.admin(ctx, http.MethodGet, "/api/admin/summary", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Exams(ctx context.Context) ([]dto.ExamOption, error) {
	var res dto.ExamListResponse
	if err := c.admin(ctx, http.MethodGet, "/api/admin/exams", nil, &res); err != nil {
		return nil, err
	}
	return res.Exams, nil
}

// Sessions lists sessions, optionally filtered by course (exam) id.
func (c *Client) Sessions(ctx context.Context, courseID string) ([]dto.SessionRow, error) {
	path := "/api/admin/sessions"
	if courseID != "" {
		path += "?" + url.Values{"courseId": {courseID}}.Encode()
	}
	var res dto.SessionListResponse
	if err := c.admin(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res.Sessions, nil
}

func (c *Client) Session(ctx context.Context, sessionID string) (*dto.SessionDetails, error) {
	var res dto.SessionDetailsResponse
	if err := c.admin(ctx, http.MethodGet, "/api/admin/session/"+url.PathEscape(sessionID), nil, &res); err != nil {
		return nil, err
	}
	return &res.Details, nil
}

func (c *Client) Submissions(ctx context.Context) ([]dto.Submission, error) {
	var res dto.SubmissionListResponse
	if err := c.admin(ctx, http.MethodGet, "/api/admin/submissions", nil, &res); err != nil {
		return nil, err
	}
	return res.Submissions, nil
}

// ExportAllLogsCSV copies the CSV export into w.
func (c *Client) ExportAllLogsCSV(ctx context.Context, w io.Writer) (int64, error) {
	raw, err := c.send(ctx, http.MethodGet, "/api/admin/export-all-logs-csv", nil, true)
	if err != nil {
		return 0, err
	}
	return io.Copy(w, bytes.NewReader(raw))
}

func (c *Client) Logout(ctx context.Context) error {
	return c.admin(ctx, http.MethodPost, "/api/admin/logout", nil, nil)
}

// CreateTest publishes a new exam definition and returns the platform's message.
func (c *Client) CreateTest(ctx context.Context, req dto.CreateTestRequest) (string, error) {
	var res dto.MessageResponse
	if err := c.admin(ctx, http.MethodPost, "/api/admin/create_test", req, &res); err != nil {
		return "", err
	}
	return res.Message, nil
}
