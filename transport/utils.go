package transport

import (
	"encoding/json"
	"log"
	"net/http"

	gut "github.com/panyam/goutils/utils"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SendJsonResponse writes a JSON response to the http.ResponseWriter.
// If err is nil, resp is marshaled to JSON and written with status 200 OK.
// If err is non-nil, an appropriate HTTP status is derived from the gRPC
// status code (if present) and an error object is written instead.
func SendJsonResponse(writer http.ResponseWriter, resp any, err error) {
	output := resp
	httpCode := ErrorToHttpCode(err)
	if err != nil {
		if er, ok := status.FromError(err); ok {
			output = gut.StrMap{
				"error":   er.Code(),
				"message": er.Message(),
			}
		} else {
			output = gut.StrMap{
				"error": err.Error(),
			}
		}
	}
	writer.WriteHeader(httpCode)
	writer.Header().Set("Content-Type", "application/json")
	jsonResp, err := json.Marshal(output)
	if err != nil {
		log.Println("Error happened in JSON marshal. Err: ", err)
	}
	writer.Write(jsonResp)
}

// ErrorToHttpCode converts a Go error to an appropriate HTTP status code.
// nil maps to 200; a gRPC status error maps by code; anything else maps to 500.
func ErrorToHttpCode(err error) int {
	httpCode := http.StatusOK
	if err != nil {
		httpCode = http.StatusInternalServerError
		if er, ok := status.FromError(err); ok {
			switch er.Code() {
			case codes.PermissionDenied:
				httpCode = http.StatusForbidden
			case codes.NotFound:
				httpCode = http.StatusNotFound
			case codes.AlreadyExists:
				httpCode = http.StatusConflict
			case codes.InvalidArgument:
				httpCode = http.StatusBadRequest
			}
		}
	}
	return httpCode
}
