package hive

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sndcds/hive/api"
)

// API: PUT /images/:key/metadata
func (h *Hive) updateImageMeta(gc *gin.Context) {
	ctx := gc.Request.Context()
	apiResponseType := "hive-image-meta-update"
	uploader := gc.GetString(UploaderKey)

	key := gc.Param("key")
	if !validKey(key) {
		api.JSONError(gc, apiResponseType, http.StatusBadRequest, "invalid key")
		return
	}

	var update ImageMetadataUpdate
	if err := gc.ShouldBindJSON(&update); err != nil {
		api.JSONError(gc, apiResponseType, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := update.Validate(); err != nil {
		api.JSONError(gc, apiResponseType, http.StatusBadRequest, err.Error())
		return
	}

	meta, err := h.Store.UpdateImageMetadata(ctx, key, uploader, update)
	if err != nil {
		switch {
		case errors.Is(err, ErrImageNotFound):
			api.JSONError(gc, apiResponseType, http.StatusNotFound, "image not found")
		case errors.Is(err, ErrNotUploader):
			api.JSONError(gc, apiResponseType, http.StatusForbidden, err.Error())
		default:
			h.Logger.Error("failed to update image metadata", "key", key, "err", err)
			api.JSONDatabaseError(gc, apiResponseType)
		}
		return
	}

	api.JSONSuccess(gc, apiResponseType, meta, nil)
}
