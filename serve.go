package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"FaceDetServer/adhoc"
	"FaceDetServer/config"
	"FaceDetServer/engine"
	"FaceDetServer/httpapi"
	"FaceDetServer/logger"
	"FaceDetServer/monitor"
	"FaceDetServer/rpc"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var dump bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve detection over gRPC, HTTP and WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if dump {
				out, err := cfg.Dump()
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().BoolVar(&dump, "dump-config", false, "print the effective config and exit")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	cpus := runtime.NumCPU()
	banner(
		fmt.Sprintf("CPU Cores: %d", cpus),
		fmt.Sprintf(" gRPC  Port: %d", cfg.RPCPort),
		fmt.Sprintf(" HTTP  Port: %d", cfg.HTTPPort),
		fmt.Sprintf(" Adhoc Port: %d", cfg.AdhocPort),
		fmt.Sprintf("Configured Workers Num: %d", cfg.WorkersNum),
	)
	if cfg.Model.UseGPU {
		banner("GPU acceleration requested, make sure the device has enough memory for every worker.")
	}

	modelPath, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer engine.DestroyEnvironment()

	registry := engine.NewRegistry()
	defer registry.Close()
	d := &engine.Detector{}
	d.New()
	if err := d.LoadModel(cfg.EngineConfig(modelPath)); err != nil {
		return err
	}
	defaultID, err := registry.Add(d, "default", engine.SingleThread)
	if err != nil {
		d.Destroy()
		return err
	}
	if err := registry.SetDefault(defaultID); err != nil {
		return err
	}

	pool := engine.NewWorkerPool(cfg.WorkersNum)
	defer pool.Close()

	decode := decoderFor(cfg).Decode
	rpcSrv := rpc.NewServer(registry, pool, decode, cfg.ModelDir)
	rpcSrv.Defaults = cfg.EngineConfig("")
	api := httpapi.NewServer(registry, pool, decode, cfg.ModelDir, time.Duration(cfg.IdleTimeoutMs)*time.Millisecond)

	// Registration is prepared before any listener starts so a failure
	// here leaves nothing running.
	registrar, alive, err := prepareRegistration(cfg, modelPath)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.RPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	gs := rpc.NewGRPCServer(rpcSrv)
	g.Go(func() error {
		logger.Log().Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
		return gs.Serve(lis)
	})

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Log().Info("HTTP server listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return monitor.StartMon(gctx, cfg.AdhocPort)
	})

	if cfg.Model.Watch {
		watcher, err := engine.NewModelWatcher(modelPath, 0, func(path string) {
			reloadDefault(registry, cfg, path, nil)
		})
		if err != nil {
			logger.Log().Warn("model watcher disabled", zap.Error(err))
		} else {
			defer watcher.Close()
			g.Go(func() error {
				watcher.Run(gctx)
				return nil
			})
		}
	}

	var hb sync.WaitGroup
	if registrar != nil {
		hb.Add(1)
		go registrar.SendAliveMessage(gctx, alive, &hb)
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-rpcSrv.ShutdownRequested():
			cancel()
		}
		gs.GracefulStop()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return httpSrv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	hb.Wait()
	fmt.Println("Safely exited")
	return err
}

// outboundIP is replaced in tests.
var outboundIP = adhoc.GetOutboundIP

// prepareRegistration returns a nil Registrar when registration is off.
func prepareRegistration(cfg *config.Config, modelPath string) (*adhoc.Registrar, adhoc.RegisterRequest, error) {
	if !cfg.UseRegServer {
		fmt.Println("UseRegServer is set to false, skipping registration")
		return nil, adhoc.RegisterRequest{}, nil
	}
	ip, err := outboundIP()
	if err != nil {
		return nil, adhoc.RegisterRequest{}, fmt.Errorf("failed to get outbound IP: %w", err)
	}
	logger.Log().Info("registering with registry server", zap.String("ip", ip))
	reg := adhoc.NewRegistrar(cfg.RegServerHost, cfg.RegServerPort)
	return reg, adhoc.RegisterRequest{
		Id:            reg.ID(),
		IP:            ip,
		Port:          cfg.RPCPort,
		InstanceClass: adhoc.InstanceClassOf(cfg.InstanceClass),
		Model:         modelPath,
	}, nil
}

// reloadDefault swaps the default engine for one loaded from path. The old
// engine keeps serving when the new model fails to load. A nil open uses the
// ONNX runtime.
func reloadDefault(registry *engine.Registry, cfg *config.Config, path string, open engine.RuntimeFactory) {
	id := registry.DefaultID()
	if id == "" {
		return
	}
	d := &engine.Detector{OpenRuntime: open}
	d.New()
	if err := d.LoadModel(cfg.EngineConfig(path)); err != nil {
		logger.Log().Error("model reload failed", zap.String("path", path), zap.Error(err))
		d.Destroy()
		return
	}
	if err := registry.Replace(id, d); err != nil {
		d.Destroy()
		logger.Log().Error("model reload failed", zap.Error(err))
		return
	}
	logger.Log().Info("model reloaded", zap.String("ID", id), zap.String("path", path))
}
