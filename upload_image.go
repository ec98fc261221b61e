package hive

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sndcds/hive/api"
)

const uploadResponseType = "hive-image"

// API: POST /images
func (h *Hive) uploadImage(gc *gin.Context) {
	ctx := gc.Request.Context()
	uploader := gc.GetString(UploaderKey)
	log := h.Logger.With("uploader", uploader)

	if limit := int64(h.Config.HiveMaxUploadMB) << 20; limit > 0 {
		gc.Request.Body = http.MaxBytesReader(gc.Writer, gc.Request.Body, limit)
	}

	upload, err := readUpload(gc)
	if err != nil {
		if errors.Is(err, ErrNoImage) {
			api.JSONError(gc, uploadResponseType, http.StatusBadRequest, ErrNoImage.Error())
			return
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.JSONError(gc, uploadResponseType, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		log.Warn("failed to read multipart payload", "err", err)
		api.JSONError(gc, uploadResponseType, http.StatusBadRequest, "invalid multipart payload")
		return
	}

	key := h.NewKey()
	meta, err := h.Ingestor.Ingest(ctx, upload, uploader, key)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoImage):
			api.JSONError(gc, uploadResponseType, http.StatusBadRequest, ErrNoImage.Error())
		case errors.Is(err, ErrImageDecode):
			api.JSONError(gc, uploadResponseType, http.StatusBadRequest, err.Error())
		default:
			log.Error("failed to store image", "key", key, "err", err)
			api.JSONStorageError(gc, uploadResponseType)
		}
		return
	}

	if err := h.Store.InsertImage(ctx, meta); err != nil {
		log.Error("failed to insert image", "key", key, "err", err)
		// Filesystem cleanup, the tree is unreferenced without its row
		if rmErr := os.RemoveAll(h.Ingestor.Layout.AssetDir(key)); rmErr != nil {
			log.Warn("failed to remove orphaned image directory", "key", key, "err", rmErr)
		}
		api.JSONDatabaseError(gc, uploadResponseType)
		return
	}

	if err := h.Notifier.ImageIngested(ctx, meta); err != nil {
		log.Warn("failed to publish ingest event", "key", key, "err", err)
	}

	api.JSONSuccess(gc, uploadResponseType, meta, nil)
}

// readUpload returns the "image" field. A part sent without a file name
// arrives as a plain form value and is accepted as well.
func readUpload(gc *gin.Context) (RawUpload, error) {
	file, err := gc.FormFile("image")
	if err != nil {
		if !errors.Is(err, http.ErrMissingFile) {
			return RawUpload{}, err
		}
		if value, ok := gc.GetPostForm("image"); ok && value != "" {
			return RawUpload{Data: []byte(value)}, nil
		}
		return RawUpload{}, ErrNoImage
	}

	src, err := file.Open()
	if err != nil {
		return RawUpload{}, err
	}
	defer src.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, src); err != nil {
		return RawUpload{}, err
	}
	return RawUpload{Data: buf.Bytes(), FileName: file.Filename}, nil
}
