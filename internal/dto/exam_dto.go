package dto

// --- Remote exam API ---

type StartExamRequest struct {
	StudentId string `json:"student_id" validate:"required"`
	TestId    string `json:"test_id" validate:"required"`
}

type StartExamResponse struct {
	Status    string `json:"status"`
	SessionId string `json:"session_id"`
}

type UploadSelfieRequest struct {
	Selfie    string `json:"selfie" validate:"required"`
	SessionId string `json:"session_id" validate:"required"`
}

type QuestionType string

const (
	QuestionMCQ  QuestionType = "mcq"
	QuestionText QuestionType = "text"
)

type Question struct {
	Text    string       `json:"text" validate:"required"`
	Type    QuestionType `json:"type" validate:"required,oneof=mcq text"`
	Options []string     `json:"options,omitempty" validate:"required_if=Type mcq"`
	Answer  *string      `json:"answer,omitempty" validate:"required_if=Type mcq"`
}

type ExamDetails struct {
	TestId          string     `json:"test_id"`
	Name            string     `json:"name"`
	Code            string     `json:"code"`
	DurationSeconds int        `json:"duration_seconds"`
	Questions       []Question `json:"questions"`
}

type ExamDetailsResponse struct {
	Status  string      `json:"status"`
	Details ExamDetails `json:"details"`
}

// SubmittedAnswer carries a null answer for unanswered questions.
type SubmittedAnswer struct {
	QuestionText string  `json:"question_text"`
	Answer       *string `json:"answer"`
}

type SubmitExamRequest struct {
	SessionId string            `json:"session_id"`
	Answers   []SubmittedAnswer `json:"answers"`
}

type ViolationRequest struct {
	SessionId         string `json:"session_id"`
	Type              string `json:"type"`
	Reason            string `json:"reason"`
	Timestamp         string `json:"timestamp"`
	TabSwitchCount    int    `json:"tabSwitchCount"`
	MultiFaceDetected bool   `json:"multiFaceDetected"`
}

type LogEventRequest struct {
	SessionId  string `json:"session_id"`
	LogType    string `json:"log_type"`
	LogMessage string `json:"log_message"`
}

type SubmissionSummary struct {
	ExamName           string `json:"exam_name"`
	EndTime            string `json:"end_time"`
	QuestionsAttempted int    `json:"questions_attempted"`
	TotalQuestions     int    `json:"total_questions"`
	Warnings           int    `json:"warnings"`
}

type SubmissionSummaryResponse struct {
	Status  string            `json:"status"`
	Summary SubmissionSummary `json:"summary"`
}

// --- Agent HTTP surface ---

type CreateAttemptRequest struct {
	StudentId string `json:"student_id" validate:"required"`
	TestId    string `json:"test_id" validate:"required"`
}

type CreateAttemptResponse struct {
	AttemptId string `json:"attempt_id"`
	Token     string `json:"token"`
}

type StudentResponse struct {
	StudentId string `json:"student_id"`
}

type SelfieRequest struct {
	// Selfie is optional; when empty the agent takes the still frame itself.
	Selfie string `json:"selfie"`
}

type AnswerRequest struct {
	Answer *string `json:"answer"`
}

type GotoRequest struct {
	Index  int     `json:"index" validate:"gte=0"`
	Answer *string `json:"answer"`
}

type QuestionView struct {
	Index    int          `json:"index"`
	Total    int          `json:"total"`
	Text     string       `json:"text"`
	Type     QuestionType `json:"type"`
	Options  []string     `json:"options,omitempty"`
	Answer   *string      `json:"answer"`
	IsLast   bool         `json:"is_last"`
	Phase    string       `json:"phase"`
	TimeLeft string       `json:"time_left"`
}

type AppealRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

type HelpRequest struct {
	Message string `json:"message" validate:"max=2000"`
}
