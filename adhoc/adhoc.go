package adhoc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"FaceDetServer/logger"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DmlInstance    = 0x2001
	CpuInstance    = 0x2002
	CudaInstance   = 0x2003
	RocmInstance   = 0x2004
	TimeOutSeconds = 5
)

type RegisterRequest struct {
	Id            string `json:"id"`
	IP            string `json:"ip"`
	Port          int    `json:"port"`
	InstanceClass int    `json:"instanceClass"`
	Model         string `json:"model"`
	TimeStamp     int64  `json:"timestamp"`
}

type RegisterResponse struct {
	Id      string `json:"id"`
	Success bool   `json:"success"`
}

// InstanceClassOf maps the config name to its wire value; unknown names are Cpu.
func InstanceClassOf(name string) int {
	switch name {
	case "Dml":
		return DmlInstance
	case "Cuda":
		return CudaInstance
	case "Rocm":
		return RocmInstance
	default:
		return CpuInstance
	}
}

// GetOutboundIP returns the local address used to reach the internet. No
// packet is sent; dialing UDP only consults the routing table.
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}

// Registrar announces this instance to the registry server.
type Registrar struct {
	BaseURL  string
	Interval time.Duration
	client   *resty.Client
	id       string
}

func NewRegistrar(host string, port int) *Registrar {
	return &Registrar{
		BaseURL:  fmt.Sprintf("http://%s:%d", host, port),
		Interval: TimeOutSeconds * time.Second,
		client:   resty.New().SetTimeout(TimeOutSeconds * time.Second),
		id:       uuid.NewString(),
	}
}

func (r *Registrar) ID() string { return r.id }

// Register sends one registration request.
func (r *Registrar) Register(ctx context.Context, req RegisterRequest) (RegisterResponse, error) {
	req.Id = r.id
	req.TimeStamp = time.Now().Unix()
	var respBody RegisterResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&respBody).
		Post(r.BaseURL + "/api/register")
	if err != nil {
		return RegisterResponse{}, fmt.Errorf("request error: %w", err)
	}
	if resp.IsError() {
		return RegisterResponse{}, fmt.Errorf("server returned error: %s, body: %s", resp.Status(), resp.String())
	}
	return respBody, nil
}

// SendAliveMessage registers immediately and then every Interval until ctx
// is cancelled. Failures are logged and retried on the next tick.
func (r *Registrar) SendAliveMessage(ctx context.Context, req RegisterRequest, wg *sync.WaitGroup) {
	if wg != nil {
		defer wg.Done()
	}
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	safeDoRequest := func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Log().Error("SendAliveMessage panic recovered", zap.Any("panic", rec))
			}
		}()
		if _, err := r.Register(ctx, req); err != nil && ctx.Err() == nil {
			logger.Log().Error("registration failed", zap.String("server", r.BaseURL), zap.Error(err))
		}
	}
	safeDoRequest()
	for {
		select {
		case <-ctx.Done():
			logger.Log().Info("SendAliveMessage context cancelled, exiting goroutine.")
			return
		case <-ticker.C:
			safeDoRequest()
		}
	}
}
