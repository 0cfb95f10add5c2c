package model

// Response is the envelope for every HTTP API response.
type Response struct {
	Data    interface{} `json:"data,omitempty"`
	Error   *string     `json:"error,omitempty"`
	Message string      `json:"message"`
}

func SuccessResponse(data interface{}) Response {
	return Response{Data: data, Message: "Success"}
}

func ErrorResponse(errMsg string) Response {
	return Response{Error: &errMsg, Message: "Error"}
}
