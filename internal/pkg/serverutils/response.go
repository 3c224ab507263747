package serverutils

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response is the envelope of every JSON reply of the agent.
type Response[T any] struct {
	Status  string `json:"status"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

func SuccessResponse[T any](message string, data T) Response[T] {
	return Response[T]{Status: StatusSuccess, Message: message, Data: data}
}

func ErrorResponse(code int, message string) Response[any] {
	return Response[any]{Status: StatusError, Code: code, Message: message}
}
