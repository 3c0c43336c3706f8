package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"FaceDetServer/engine"
	iface "FaceDetServer/interface"
	"FaceDetServer/logger"
	"FaceDetServer/monitor"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxImageBytes = 20 * 1024 * 1024

type Server struct {
	Registry    *engine.Registry
	Pool        *engine.WorkerPool
	Decode      iface.DecodeFunc
	ModelDir    string
	IdleTimeout time.Duration

	upgrader websocket.Upgrader
}

func NewServer(reg *engine.Registry, pool *engine.WorkerPool, decode iface.DecodeFunc, modelDir string, idle time.Duration) *Server {
	if idle <= 0 {
		idle = 1000 * time.Millisecond
	}
	return &Server{
		Registry:    reg,
		Pool:        pool,
		Decode:      decode,
		ModelDir:    modelDir,
		IdleTimeout: idle,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// statusOf maps engine errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, engine.ErrEngineNotFound), errors.Is(err, engine.ErrModelNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrShapeMismatch), errors.Is(err, engine.ErrUnsupportedModel):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrBusy), errors.Is(err, engine.ErrPoolClosed),
		errors.Is(err, engine.ErrNotLoaded), errors.Is(err, engine.ErrNotRegistered):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func countRequests(c *gin.Context) {
	c.Next()
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	monitor.HTTPTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), countRequests)
	r.MaxMultipartMemory = maxImageBytes

	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.POST("/api/detect", s.detect)
	r.POST("/raw/image", s.rawImage)
	r.GET("/api/engines", s.listEngines)
	r.GET("/api/engines/:id", s.checkEngine)
	r.POST("/api/models/upload", s.uploadModel)
	r.GET("/ws/detect", s.streamDetect)
	return r
}

// readImage accepts a multipart "file" field, a JSON {"image": base64}
// body or the encoded image as the raw body.
func (s *Server) readImage(c *gin.Context, field string) (iface.ImageData, error) {
	contentType := c.ContentType()
	switch {
	case strings.HasPrefix(contentType, "multipart/"):
		fh, err := c.FormFile(field)
		if err != nil {
			return iface.ImageData{}, err
		}
		f, err := fh.Open()
		if err != nil {
			return iface.ImageData{}, err
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxImageBytes))
		if err != nil {
			return iface.ImageData{}, err
		}
		return s.Decode(data)
	case contentType == gin.MIMEJSON:
		var body struct {
			Image string `json:"image" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			return iface.ImageData{}, err
		}
		return s.Decode.Base64(body.Image)
	default:
		data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImageBytes))
		if err != nil {
			return iface.ImageData{}, err
		}
		return s.Decode(data)
	}
}

func (s *Server) run(ctx context.Context, id string, img iface.ImageData) (iface.Detection, error) {
	start := time.Now()
	det, err := s.Pool.Submit(ctx, s.Registry.Engine(id), img)
	monitor.ObserveInference(start, len(det.Faces), err)
	return det, err
}

func (s *Server) detect(c *gin.Context) {
	img, err := s.readImage(c, "file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image: " + err.Error()})
		return
	}
	det, err := s.run(c.Request.Context(), c.Query("id"), img)
	if err != nil {
		logger.Log().Error("inference failed", zap.Error(err))
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	raw, _ := strconv.ParseBool(c.DefaultQuery("raw", "false"))
	c.JSON(http.StatusOK, engine.NewReport(det, raw))
}

// rawImage answers with the boxes output only.
func (s *Server) rawImage(c *gin.Context) {
	img, err := s.readImage(c, "inputimage")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image: " + err.Error()})
		return
	}
	det, err := s.run(c.Request.Context(), c.Query("id"), img)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"boxes": det.Boxes.Rows()})
}

func (s *Server) listEngines(c *gin.Context) {
	defaultID := s.Registry.DefaultID()
	entries := s.Registry.List()
	data := make([]engine.EngineInfo, 0, len(entries))
	for _, e := range entries {
		data = append(data, engine.Info(e, defaultID))
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (s *Server) checkEngine(c *gin.Context) {
	e, err := s.Registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Engine not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": engine.Info(e, s.Registry.DefaultID())})
}

func (s *Server) uploadModel(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File upload failed: " + err.Error()})
		return
	}
	name := filepath.Base(filepath.Clean(file.Filename))
	if !strings.EqualFold(filepath.Ext(name), ".onnx") {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("only .onnx models can be uploaded, got %q", name)})
		return
	}
	if err := os.MkdirAll(s.ModelDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	modelPath := filepath.Join(s.ModelDir, name)
	if err := c.SaveUploadedFile(file, modelPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file: " + err.Error()})
		return
	}
	logger.Log().Info("model uploaded", zap.String("path", modelPath), zap.Int64("bytes", file.Size))
	c.JSON(http.StatusOK, gin.H{"data": modelPath, "size": file.Size})
}
