package hive

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/sndcds/hive/api"
)

// API: DELETE /images/:key
func (h *Hive) deleteImage(gc *gin.Context) {
	ctx := gc.Request.Context()
	apiResponseType := "hive-image-delete"
	uploader := gc.GetString(UploaderKey)

	key := gc.Param("key")
	if !validKey(key) {
		api.JSONError(gc, apiResponseType, http.StatusBadRequest, "invalid key")
		return
	}

	// The tree goes inside the transaction so a failed removal keeps the row.
	dir := h.Ingestor.Layout.AssetDir(key)
	err := h.Store.DeleteImage(ctx, key, uploader, func(ctx context.Context, tx pgx.Tx) error {
		return os.RemoveAll(dir)
	})
	if err != nil {
		var txErr *ApiTxError
		switch {
		case errors.Is(err, ErrImageNotFound):
			api.JSONError(gc, apiResponseType, http.StatusNotFound, "image not found")
		case errors.Is(err, ErrNotUploader):
			api.JSONError(gc, apiResponseType, http.StatusForbidden, err.Error())
		case errors.As(err, &txErr):
			h.Logger.Error("failed to delete image", "key", key, "err", err)
			api.JSONError(gc, apiResponseType, txErr.Code, "database error")
		default:
			h.Logger.Error("failed to delete image", "key", key, "err", err)
			api.JSONDatabaseError(gc, apiResponseType)
		}
		return
	}

	api.JSONSuccess(gc, apiResponseType, gin.H{"key": key}, nil)
}
