package serving

import (
	"context"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Dialect endpoint 的请求/响应格式
type Dialect int

const (
	DialectCompletion Dialect = iota
	DialectStructuredTurn
)

const taskStructuredTurn = "agent/v1/responses"

func (d Dialect) String() string {
	switch d {
	case DialectStructuredTurn:
		return "structured_turn"
	default:
		return "completion"
	}
}

// DialectForTask 按 endpoint task 类型分类，未知类型都按 completion 处理
func DialectForTask(task string) Dialect {
	if task == taskStructuredTurn {
		return DialectStructuredTurn
	}
	return DialectCompletion
}

// probe 查询 endpoint 元数据；失败时回退到 completion
func (c *Client) probe(ctx context.Context, token string) Dialect {
	if c.config.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ProbeTimeout)
		defer cancel()
	}

	endpoint := c.config.BaseURL() + "/api/2.0/serving-endpoints/" + url.PathEscape(c.config.EndpointName)
	body, err := c.doJSON(ctx, http.MethodGet, endpoint, token, nil)
	if err != nil {
		c.logger.WithContext(ctx).Warn("endpoint probe failed, falling back to completion",
			zap.String("endpoint", c.config.EndpointName),
			zap.Error(err),
		)
		return DialectCompletion
	}

	task := gjson.GetBytes(body, "task").String()
	d := DialectForTask(task)
	c.logger.WithContext(ctx).Debug("endpoint probed",
		zap.String("endpoint", c.config.EndpointName),
		zap.String("task", task),
		zap.Stringer("dialect", d),
	)
	return d
}
