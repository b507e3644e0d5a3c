package response

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"go-dalil/internal/apperror"
)

const CodeSuccess = 0

type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Response{Code: CodeSuccess, Message: "success", Data: data}); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// Error writes err using its AppError code; other errors become a 500 with a
// generic message and are logged.
func Error(w http.ResponseWriter, err error) {
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	write(w, status, apperror.GetCode(err), apperror.GetMessage(err))
}

func ErrorWithMsg(w http.ResponseWriter, err *apperror.AppError, message string) {
	write(w, apperror.HTTPStatus(err), err.Code, message)
}

func write(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Code: code, Message: message})
}
