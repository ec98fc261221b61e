package hive

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sndcds/hive/api"
)

// API: GET /images/:key
func (h *Hive) getImageMeta(gc *gin.Context) {
	ctx := gc.Request.Context()
	apiReponseType := "hive-image-meta"

	key := gc.Param("key")
	if !validKey(key) {
		api.JSONError(gc, apiReponseType, http.StatusBadRequest, "invalid key")
		return
	}

	meta, err := h.Store.GetImage(ctx, key)
	if err != nil {
		if errors.Is(err, ErrImageNotFound) {
			api.JSONError(gc, apiReponseType, http.StatusNotFound, "image not found")
			return
		}
		h.Logger.Error("failed to get image", "key", key, "err", err)
		api.JSONDatabaseError(gc, apiReponseType)
		return
	}

	api.JSONSuccess(gc, apiReponseType, meta, map[string]any{
		"files": h.fileURLs(key),
	})
}

// fileURLs lists the served paths of an asset's renditions.
func (h *Hive) fileURLs(key string) map[string]string {
	enc := h.Ingestor.Layout.Encoder
	urls := make(map[string]string, 4)
	for _, name := range []RenditionName{RenditionFull, RenditionLarge, RenditionMedium, RenditionTiny} {
		urls[string(name)] = h.Config.BaseApiUrl + "/files/" + key + "/" + enc.FileName(name)
	}
	return urls
}
