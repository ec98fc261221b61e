package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	serviceName    = "Hive API"
	serviceVersion = "1.0"
)

type ApiResponse[T any] struct {
	Service      string         `json:"service"`
	Version      string         `json:"version"`
	ResponseType string         `json:"type"`
	Status       string         `json:"status"`
	Timestamp    string         `json:"timestamp"`
	Meta         map[string]any `json:"meta,omitempty"`
	Data         T              `json:"data,omitempty"`
	Message      string         `json:"error,omitempty"`
}

func newResponse[T any](responseType, status string) ApiResponse[T] {
	return ApiResponse[T]{
		Service:      serviceName,
		Version:      serviceVersion,
		ResponseType: responseType,
		Status:       status,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
}

func JSONSuccess[T any](gc *gin.Context, responseType string, data T, meta map[string]any) {
	resp := newResponse[T](responseType, "ok")
	resp.Meta = meta
	resp.Data = data
	gc.JSON(http.StatusOK, resp)
}

func JSONSuccessNoData(gc *gin.Context, responseType string) {
	gc.JSON(http.StatusOK, newResponse[any](responseType, "ok"))
}

func JSONError(gc *gin.Context, responseType string, statusCode int, errorMessage string) {
	resp := newResponse[any](responseType, "error")
	resp.Message = errorMessage
	gc.JSON(statusCode, resp)
}

func JSONDatabaseError(gc *gin.Context, responseType string) {
	JSONError(gc, responseType, http.StatusInternalServerError, "database error")
}

func JSONStorageError(gc *gin.Context, responseType string) {
	JSONError(gc, responseType, http.StatusInternalServerError, "storage error")
}
