package legal

// Response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response is the tagged envelope every caller-facing operation returns.
type Response struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	ErrorType ErrorType `json:"error_type,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Respond wraps the outcome of an operation. A nil err yields a success
// envelope carrying data.
func Respond(data any, message string, err error) Response {
	if err != nil {
		t := TypeOf(err)
		if t == "" {
			t = RetrievalError
		}
		return Response{Status: StatusError, Message: err.Error(), ErrorType: t}
	}
	return Response{Status: StatusSuccess, Message: message, Data: data}
}
