package hive

import (
	"github.com/gin-gonic/gin"
	"github.com/sndcds/hive/api"
)

// API: GET /images
func (h *Hive) listImages(gc *gin.Context) {
	ctx := gc.Request.Context()
	apiResponseType := "hive-image-list"
	uploader := gc.GetString(UploaderKey)

	images, err := h.Store.ListImages(ctx, uploader)
	if err != nil {
		h.Logger.Error("failed to list images", "uploader", uploader, "err", err)
		api.JSONDatabaseError(gc, apiResponseType)
		return
	}

	api.JSONSuccess(gc, apiResponseType, images, map[string]any{
		"count": len(images),
	})
}
