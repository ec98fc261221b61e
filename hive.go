package hive

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UploaderKey is the gin context key under which the auth layer stores
// the identity of the requesting user.
const UploaderKey = "uploader"

// UploaderHeader is honoured only when Config.TrustUploaderHeader is set.
const UploaderHeader = "X-Hive-Uploader"

type Hive struct {
	DbPool   *pgxpool.Pool
	Store    ImageStore
	Ingestor *Ingestor
	Notifier Notifier
	Config   Config
	Logger   *slog.Logger
	NewKey   func() string
}

// New wires a Hive from its parts. It opens no connections.
func New(config Config, store ImageStore, notifier Notifier, log *slog.Logger) (*Hive, error) {
	enc, err := config.Encoder()
	if err != nil {
		return nil, err
	}
	resample, err := ResamplerByName(config.HiveResampler)
	if err != nil {
		return nil, err
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	ingestor := NewIngestor(config.HiveDataDir, enc, resample, log)
	ingestor.MaxPixels = config.HiveMaxPixels
	return &Hive{
		Store:    store,
		Ingestor: ingestor,
		Notifier: notifier,
		Config:   config,
		Logger:   log,
		NewKey:   GenerateKey,
	}, nil
}

// Open connects to PostgreSQL and Kafka and returns a ready Hive.
func Open(ctx context.Context, config Config, log *slog.Logger) (*Hive, error) {
	pool, err := pgxpool.New(ctx, config.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}
	log.Info("database connection pool initialized")

	h, err := New(config, NewPgImageStore(pool, config.DbSchema), NewNotifier(config), log)
	if err != nil {
		pool.Close()
		return nil, err
	}
	h.DbPool = pool
	return h, nil
}

func (h *Hive) Close() {
	if err := h.Notifier.Close(); err != nil {
		h.Logger.Warn("failed to close notifier", "err", err)
	}
	if h.DbPool != nil {
		h.DbPool.Close()
	}
}

func (h *Hive) RegisterRoutes(rg *gin.RouterGroup, middlewares ...gin.HandlerFunc) {
	middlewares = append(middlewares, h.requireUploader)

	images := rg.Group("/images", middlewares...)
	images.POST("", h.uploadImage)
	images.GET("", h.listImages)
	images.GET("/:key", h.getImageMeta)
	images.PUT("/:key/metadata", h.updateImageMeta)
	images.DELETE("/:key", h.deleteImage)

	rg.GET("/files/:key/*name", h.getFile)
}

// Router returns a gin engine with all routes mounted at the root.
func (h *Hive) Router(middlewares ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = int64(h.Config.HiveMaxUploadMB) << 20
	h.RegisterRoutes(&r.RouterGroup, middlewares...)
	return r
}

func (h *Hive) requireUploader(gc *gin.Context) {
	uploader := gc.GetString(UploaderKey)
	if uploader == "" && h.Config.TrustUploaderHeader {
		uploader = gc.GetHeader(UploaderHeader)
		gc.Set(UploaderKey, uploader)
	}
	if uploader == "" {
		gc.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	gc.Next()
}
