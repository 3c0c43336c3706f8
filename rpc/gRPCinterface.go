package rpc

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"FaceDetServer/engine"
	iface "FaceDetServer/interface"
	"FaceDetServer/logger"
	"FaceDetServer/monitor"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type Server struct {
	Registry *engine.Registry
	Pool     *engine.WorkerPool
	Decode   iface.DecodeFunc
	// NewBackend returns an unloaded backend for InitEngine.
	NewBackend func() iface.Backend
	// Defaults supplies input size and thread settings for InitEngine.
	Defaults iface.EngineConfig
	ModelDir string

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

func NewServer(reg *engine.Registry, pool *engine.WorkerPool, decode iface.DecodeFunc, modelDir string) *Server {
	return &Server{
		Registry: reg,
		Pool:     pool,
		Decode:   decode,
		ModelDir: modelDir,
		NewBackend: func() iface.Backend {
			d := &engine.Detector{}
			d.New()
			return d
		},
		Defaults: engine.DefaultConfig(""),
		shutdown: make(chan struct{}),
	}
}

// ShutdownRequested is closed once a client calls Shutdown.
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.shutdown
}

// statusOf maps engine errors to gRPC codes.
func statusOf(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, engine.ErrEngineNotFound), errors.Is(err, engine.ErrModelNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, engine.ErrShapeMismatch), errors.Is(err, engine.ErrUnsupportedModel):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, engine.ErrBusy), errors.Is(err, engine.ErrPoolClosed), errors.Is(err, engine.ErrNotRegistered):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, engine.ErrNotLoaded), errors.Is(err, engine.ErrRuntimeNotInitialized):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func (s *Server) InitEngine(ctx context.Context, req *InitEngineRequest) (*InitEngineResponse, error) {
	conf, iou := s.Defaults.Conf, s.Defaults.Iou
	if req.Confidence != nil {
		conf = *req.Confidence
	}
	if req.Iou != nil {
		iou = *req.Iou
	}
	if iou > 1.0 || iou < 0.0 {
		return nil, status.Errorf(codes.InvalidArgument, "IoU must be between 0.0 and 1.0, got %f", iou)
	}
	if conf > 1.0 || conf < 0.0 {
		return nil, status.Errorf(codes.InvalidArgument, "confidence must be between 0.0 and 1.0, got %f", conf)
	}
	if req.ModelPath == "" {
		return nil, status.Error(codes.InvalidArgument, "model path cannot be empty")
	}
	resolved, err := engine.ResolveModelPath([]string{req.ModelPath})
	if err != nil {
		return nil, statusOf(err)
	}

	cfg := s.Defaults
	cfg.ModelPath = resolved
	cfg.Conf = conf
	cfg.Iou = iou
	cfg.UseGPU = req.UseGPU
	backend := s.NewBackend()
	if err := backend.LoadModel(cfg); err != nil {
		backend.Destroy()
		return nil, statusOf(err)
	}
	id, err := s.Registry.Add(backend, req.Description, req.EngineType)
	if err != nil {
		backend.Destroy()
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Default {
		if err := s.Registry.SetDefault(id); err != nil {
			return nil, statusOf(err)
		}
	}
	logger.Log().Info("Initialized new engine", zap.String("ID", id), zap.String("ModelPath", resolved), zap.Float32("Confidence", conf), zap.Float32("IoU", iou))
	return &InitEngineResponse{Success: true, ID: id, Message: "Successfully initialized engine"}, nil
}

func (s *Server) Inference(ctx context.Context, req *InferenceRequest) (*InferenceResponse, error) {
	img, err := s.Decode.Base64(req.Image)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid image: %v", err)
	}
	start := time.Now()
	det, err := s.Pool.Submit(ctx, s.Registry.Engine(req.ID), img)
	monitor.ObserveInference(start, len(det.Faces), err)
	if err != nil {
		logger.Log().Error("inference failed", zap.String("ID", req.ID), zap.Error(err))
		return nil, statusOf(err)
	}
	report := engine.NewReport(det, req.Raw)
	return &report, nil
}

func (s *Server) DestroyEngine(ctx context.Context, req *EngineRequest) (*StatusResponse, error) {
	if err := s.Registry.Remove(req.ID); err != nil {
		logger.Log().Error("detector not found with ID", zap.String("ID", req.ID))
		return nil, statusOf(err)
	}
	return &StatusResponse{Success: true, Message: "Detector destroyed successfully"}, nil
}

func (s *Server) CheckEngine(ctx context.Context, req *EngineRequest) (*CheckEngineResponse, error) {
	entry, err := s.Registry.Get(req.ID)
	if err != nil {
		return nil, statusOf(err)
	}
	return &CheckEngineResponse{
		Success:    true,
		EngineInfo: engine.Info(entry, s.Registry.DefaultID()),
		Message:    "Detector status retrieved successfully",
	}, nil
}

func (s *Server) CheckAllEngine(ctx context.Context, _ *CheckAllEngineRequest) (*CheckAllEngineResponse, error) {
	defaultID := s.Registry.DefaultID()
	entries := s.Registry.List()
	infos := make([]engine.EngineInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, engine.Info(e, defaultID))
	}
	return &CheckAllEngineResponse{
		Success: true,
		Engines: infos,
		Message: "All Detectors status retrieved successfully",
	}, nil
}

func (s *Server) Shutdown(ctx context.Context, _ *ShutdownRequest) (*StatusResponse, error) {
	s.shutdownOnce.Do(func() {
		logger.Log().Warn("Shutdown requested over gRPC")
		close(s.shutdown)
	})
	return &StatusResponse{Success: true, Message: "Shutting down"}, nil
}

func (s *Server) UploadModel(stream grpc.ServerStream) error {
	md, _ := metadata.FromIncomingContext(stream.Context())
	names := md.Get(ModelNameKey)
	if len(names) == 0 || names[0] == "" {
		return status.Error(codes.InvalidArgument, "file name cannot be empty")
	}
	name := filepath.Base(filepath.Clean(names[0]))
	if !strings.EqualFold(filepath.Ext(name), ".onnx") {
		return status.Errorf(codes.InvalidArgument, "only .onnx models can be uploaded, got %q", name)
	}
	if err := os.MkdirAll(s.ModelDir, 0o755); err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	outFile, err := os.CreateTemp(s.ModelDir, name+".*.part")
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	committed := false
	defer func() {
		if !committed {
			_ = outFile.Close()
			_ = os.Remove(outFile.Name())
		}
	}()

	var fileSize int64
	for {
		chunk := new(wrapperspb.BytesValue)
		err := stream.RecvMsg(chunk)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		n, writeErr := outFile.Write(chunk.GetValue())
		if writeErr != nil {
			return status.Errorf(codes.Internal, "failed to write chunk data: %v", writeErr)
		}
		fileSize += int64(n)
	}
	if err := outFile.Close(); err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	filePath := filepath.Join(s.ModelDir, name)
	if err := os.Rename(outFile.Name(), filePath); err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	committed = true
	logger.Log().Info("model uploaded", zap.String("path", filePath), zap.Int64("bytes", fileSize))
	resp, err := toStruct(&UploadModelResponse{
		Success:  true,
		Message:  "File uploaded successfully",
		FilePath: filePath,
		Size:     fileSize,
	})
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	return stream.SendMsg(resp)
}

func countingUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	monitor.GRPCTotal.WithLabelValues(path.Base(info.FullMethod)).Inc()
	return handler(ctx, req)
}

func countingStream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	monitor.GRPCTotal.WithLabelValues(path.Base(info.FullMethod)).Inc()
	return handler(srv, ss)
}

// NewGRPCServer registers s on a new grpc.Server with request counting.
func NewGRPCServer(s *Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(countingUnary),
		grpc.ChainStreamInterceptor(countingStream),
	)
	gs := grpc.NewServer(opts...)
	gs.RegisterService(&ServiceDesc, s)
	return gs
}

var _ DetectServiceServer = (*Server)(nil)
