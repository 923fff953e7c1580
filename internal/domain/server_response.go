package domain

// ResponseMessageSuccess is the message of every successful ServerResponse.
const ResponseMessageSuccess = "Success"

// ServerResponse is the JSON envelope returned by every /users endpoint.
type ServerResponse struct {
	Message string `json:"message"`
	Body    any    `json:"body,omitempty"`
}

// OK wraps body in a successful response.
func OK(body any) ServerResponse {
	return ServerResponse{Message: ResponseMessageSuccess, Body: body}
}

// Error builds a response carrying only a message.
func Error(message string) ServerResponse {
	return ServerResponse{Message: message}
}
