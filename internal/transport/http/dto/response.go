package dto

type ErrorResponse struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func Fail(msg string, details ...string) ErrorResponse {
	return ErrorResponse{Success: false, Error: msg, Details: details}
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
