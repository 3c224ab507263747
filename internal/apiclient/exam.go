package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"exam-proctor-agent/internal/dto"
)

// StartExam opens a session on the platform and returns its id.
func (c *Client) StartExam(ctx context.Context, studentID, testID string) (string, error) {
	var res dto.StartExamResponse
	err := c.do(ctx, http.MethodPost, "/api/exam/start", dto.StartExamRequest{
		StudentId: studentID,
		TestId:    testID,
	}, &res)
	if err != nil {
		return "", err
	}
	if res.SessionId == "" {
		return "", errors.New("start exam: empty session id")
	}
	return res.SessionId, nil
}

func (c *Client) UploadSelfie(ctx context.Context, sessionID, dataURL string) error {
	return c.do(ctx, http.MethodPost, "/upload-selfie", dto.UploadSelfieRequest{
		Selfie:    dataURL,
		SessionId: sessionID,
	}, nil)
}

func (c *Client) ExamDetails(ctx context.Context, testID string) (*dto.ExamDetails, error) {
	var res dto.ExamDetailsResponse
	if err := c.do(ctx, http.MethodGet, "/api/exam/details/"+url.PathEscape(testID), nil, &res); err != nil {
		return nil, err
	}
	if len(res.Details.Questions) == 0 {
		return nil, errors.New("exam details: test has no questions")
	}
	return &res.Details, nil
}

// SubmitExam is bounded by SubmitTimeout so a silent server cannot leave the
// attempt pending forever.
func (c *Client) SubmitExam(ctx context.Context, sessionID string, answers []dto.SubmittedAnswer) error {
	if c.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.SubmitTimeout)
		defer cancel()
	}
	return c.do(ctx, http.MethodPost, "/api/exam/submit", dto.SubmitExamRequest{
		SessionId: sessionID,
		Answers:   answers,
	}, nil)
}

func (c *Client) ReportViolation(ctx context.Context, v dto.ViolationRequest) error {
	return c.do(ctx, http.MethodPost, "/api/exam/violation", v, nil)
}

func (c *Client) LogEvent(ctx context.Context, sessionID, logType, message string) error {
	return c.do(ctx, http.MethodPost, "/api/log_event", dto.LogEventRequest{
		SessionId:  sessionID,
		LogType:    logType,
		LogMessage: message,
	}, nil)
}

func (c *Client) SubmissionSummary(ctx context.Context, sessionID string) (*dto.SubmissionSummary, error) {
	var res dto.SubmissionSummaryResponse
	if err := c.do(ctx, http.MethodGet, "/api/submission/summary/"+url.PathEscape(sessionID), nil, &res); err != nil {
		return nil, err
	}
	return &res.Summary, nil
}
