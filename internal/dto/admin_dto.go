package dto

// --- Admin passthrough endpoints ---

type AdminSummaryResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"activeSessions"`
	PendingAlerts  int    `json:"pendingAlerts"`
}

type ExamOption struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

type ExamListResponse struct {
	Status string       `json:"status"`
	Exams  []ExamOption `json:"exams"`
}

type SessionRow struct {
	Id          string `json:"id"`
	StudentName string `json:"studentName"`
	ExamName    string `json:"examName"`
	Status      string `json:"status"`
	Time        string `json:"time"`
}

type SessionListResponse struct {
	Status   string       `json:"status"`
	Sessions []SessionRow `json:"sessions"`
}

type SessionLog struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Message   string `json:"message"`
}

type SessionDetails struct {
	StudentName string       `json:"studentName"`
	StudentId   string       `json:"studentId"`
	ExamName    string       `json:"examName"`
	ExamCode    string       `json:"examCode"`
	StartTime   string       `json:"startTime"`
	EndTime     string       `json:"endTime"`
	Status      string       `json:"status"`
	Alerts      []SessionLog `json:"alerts"`
}

type SessionDetailsResponse struct {
	Status  string         `json:"status"`
	Details SessionDetails `json:"details"`
}

type GradedAnswer struct {
	QuestionText string  `json:"question_text"`
	Answer       *string `json:"answer"`
	Status       string  `json:"status"`
}

type Submission struct {
	SessionId   string         `json:"session_id"`
	StudentId   string         `json:"student_id"`
	TestId      string         `json:"test_id"`
	StartTime   string         `json:"start_time"`
	StudentName string         `json:"student_name"`
	ExamName    string         `json:"exam_name"`
	Logs        []SessionLog   `json:"logs"`
	Answers     []GradedAnswer `json:"answers"`
	Score       string         `json:"score"`
}

type SubmissionListResponse struct {
	Status      string       `json:"status"`
	Submissions []Submission `json:"submissions"`
}

// CreateTestRequest is a new exam definition. Duration is in minutes.
type CreateTestRequest struct {
	Title             string     `json:"title" validate:"required"`
	Duration          int        `json:"duration" validate:"required,gt=0"`
	ScheduledDatetime string     `json:"scheduled_datetime,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Questions         []Question `json:"questions" validate:"dive"`
}

type MessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
