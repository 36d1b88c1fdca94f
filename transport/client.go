package transport

import (
	"net/http"
	"time"

	"google.golang.org/grpc/credentials"
)

// NewHTTPClient 创建使用自定义信任评估的 HTTP 客户端
func NewHTTPClient(cfg *ClientConfig, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = NewClientTLSConfig(cfg)

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// NewGRPCCredentials 创建使用自定义信任评估的 gRPC 传输凭证
func NewGRPCCredentials(cfg *ClientConfig) credentials.TransportCredentials {
	return credentials.NewTLS(NewClientTLSConfig(cfg))
}
