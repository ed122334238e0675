package types

// API error codes. The suffix is the HTTP status the code is sent with.
const (
	CodeAuthBadRequest  = "AUTH_400"
	CodeUnauthorized    = "AUTH_401"
	CodeForbidden       = "AUTH_403"
	CodeBadRequest      = "SUPPLY_400"
	CodeNotFound        = "SUPPLY_404"
	CodeConflict        = "SUPPLY_409"
	CodeGateway         = "SUPPLY_502"
	CodeInternal        = "SUPPLY_500"
	CodeStorageDisabled = "STORAGE_503"
	CodeStorageFailure  = "STORAGE_500"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
