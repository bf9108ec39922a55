package depgate

import (
	"context"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody 错误响应体最多读取的字节数
const maxErrorBody = 512

// CheckResponse 将非 2xx 响应转换为 StatusError
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Status: resp.StatusCode,
		Detail: strings.TrimSpace(string(body)),
	}
}

// HTTPProbe 构造一个 HTTP 探测操作
//
// prepare 可为空，用于写入认证头等；响应体会被丢弃。
func HTTPProbe(client *http.Client, method, url string, prepare func(*http.Request) error) func(context.Context) error {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return err
		}
		if prepare != nil {
			if err := prepare(req); err != nil {
				return err
			}
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := CheckResponse(resp); err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
}
