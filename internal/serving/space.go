package serving

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	apperrors "github.com/lk2023060901/agent-bridge/internal/pkg/errors"
)

// Genie 消息状态
const (
	spaceStatusCompleted = "COMPLETED"
	spaceStatusFailed    = "FAILED"
	spaceStatusCancelled = "CANCELLED"
	spaceStatusExpired   = "QUERY_RESULT_EXPIRED"
)

// SpaceAnswer agent space 的一次问答结果
type SpaceAnswer struct {
	ConversationID string
	MessageID      string
	Result         string // 文本回答，或查询描述 + markdown 表格
	Query          string // 生成的 SQL，可能为空
	Description    string
}

// AskSpace 在 agent space 中提问；conversationID 为空时新建会话
func (c *Client) AskSpace(ctx context.Context, question, conversationID, platformToken string) (*SpaceAnswer, error) {
	if c.config.SpaceID == "" {
		return nil, apperrors.New(apperrors.ErrInvalidParams, "space_id is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	token, err := c.exchanger.Exchange(ctx, platformToken)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	answer, err := c.askSpace(ctx, token, question, conversationID)
	c.metrics.RecordBackendRequest("space", err, time.Since(start))
	if err != nil {
		return nil, err
	}

	c.logger.WithContext(ctx).Info("agent space replied",
		zap.String("space_id", c.config.SpaceID),
		zap.String("space_conversation_id", answer.ConversationID),
		zap.Bool("has_query", answer.Query != ""),
		zap.Duration("elapsed", time.Since(start)),
	)
	return answer, nil
}

func (c *Client) spaceURL(parts ...string) string {
	u := c.config.BaseURL() + "/api/2.0/genie/spaces/" + url.PathEscape(c.config.SpaceID)
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

func (c *Client) askSpace(ctx context.Context, token, question, conversationID string) (*SpaceAnswer, error) {
	payload := map[string]string{"content": question}

	var messageID string
	if conversationID == "" {
		body, err := c.doJSON(ctx, http.MethodPost, c.spaceURL("start-conversation"), token, payload)
		if err != nil {
			return nil, err
		}
		conversationID = firstString(body, "conversation_id", "conversation.id")
		messageID = firstString(body, "message_id", "message.id")
	} else {
		body, err := c.doJSON(ctx, http.MethodPost, c.spaceURL("conversations", conversationID, "messages"), token, payload)
		if err != nil {
			return nil, err
		}
		messageID = firstString(body, "message_id", "id")
	}

	if conversationID == "" || messageID == "" {
		return nil, apperrors.New(apperrors.ErrBackendProtocol, "agent space did not return conversation or message id")
	}

	msg, err := c.pollSpaceMessage(ctx, token, conversationID, messageID)
	if err != nil {
		return nil, err
	}

	answer := &SpaceAnswer{ConversationID: conversationID, MessageID: messageID}
	var attachmentID string
	msg.Get("attachments").ForEach(func(_, att gjson.Result) bool {
		if text := att.Get("text.content"); text.Exists() && answer.Result == "" {
			answer.Result = text.String()
		}
		if q := att.Get("query"); q.Exists() {
			answer.Query = q.Get("query").String()
			answer.Description = q.Get("description").String()
			attachmentID = att.Get("attachment_id").String()
		}
		return true
	})

	if answer.Query != "" {
		table, err := c.fetchQueryResult(ctx, token, conversationID, messageID, attachmentID)
		if err != nil {
			return nil, err
		}
		answer.Result = joinNonEmpty("\n\n", answer.Description, table)
	}

	if answer.Result == "" {
		return nil, apperrors.New(apperrors.ErrBackendProtocol, "agent space returned no answer")
	}
	return answer, nil
}

// pollSpaceMessage 轮询直到完成、失败或超时
func (c *Client) pollSpaceMessage(ctx context.Context, token, conversationID, messageID string) (gjson.Result, error) {
	deadline := time.Now().Add(c.config.SpaceTimeout)
	interval := c.config.SpacePollInterval
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		body, err := c.doJSON(ctx, http.MethodGet, c.spaceURL("conversations", conversationID, "messages", messageID), token, nil)
		if err != nil {
			return gjson.Result{}, err
		}

		msg := gjson.ParseBytes(body)
		status := msg.Get("status").String()
		switch status {
		case spaceStatusCompleted:
			return msg, nil
		case spaceStatusFailed, spaceStatusCancelled, spaceStatusExpired:
			return gjson.Result{}, apperrors.Newf(apperrors.ErrSpaceQuery, "message %s %s: %s",
				messageID, strings.ToLower(status), msg.Get("error.error").String())
		}

		c.logger.WithContext(ctx).Debug("agent space message pending",
			zap.String("message_id", messageID),
			zap.String("status", status),
		)

		if time.Now().After(deadline) {
			return gjson.Result{}, apperrors.Newf(apperrors.ErrSpaceTimeout, "message %s still %s after %s",
				messageID, status, c.config.SpaceTimeout)
		}

		select {
		case <-ctx.Done():
			return gjson.Result{}, apperrors.Wrap(ctx.Err(), apperrors.ErrSpaceTimeout, "waiting for agent space")
		case <-ticker.C:
		}
	}
}

func (c *Client) fetchQueryResult(ctx context.Context, token, conversationID, messageID, attachmentID string) (string, error) {
	var endpoint string
	if attachmentID != "" {
		endpoint = c.spaceURL("conversations", conversationID, "messages", messageID, "attachments", attachmentID, "query-result")
	} else {
		endpoint = c.spaceURL("conversations", conversationID, "messages", messageID, "query-result")
	}

	body, err := c.doJSON(ctx, http.MethodGet, endpoint, token, nil)
	if err != nil {
		return "", err
	}

	stmt := gjson.GetBytes(body, "statement_response")
	if state := stmt.Get("status.state").String(); state != "" && state != "SUCCEEDED" {
		return "", apperrors.Newf(apperrors.ErrSpaceQuery, "query result state %s", state)
	}

	var columns []string
	stmt.Get("manifest.schema.columns").ForEach(func(_, col gjson.Result) bool {
		columns = append(columns, col.Get("name").String())
		return true
	})

	var rows [][]string
	stmt.Get("result.data_array").ForEach(func(_, row gjson.Result) bool {
		var cells []string
		row.ForEach(func(_, cell gjson.Result) bool {
			cells = append(cells, cell.String())
			return true
		})
		rows = append(rows, cells)
		return true
	})

	return MarkdownTable(columns, rows), nil
}

// MarkdownTable 渲染为 markdown 表格；没有列时返回空串
func MarkdownTable(columns []string, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		sb.WriteString("|")
		for i := range columns {
			cell := ""
			if i < len(cells) {
				cell = strings.ReplaceAll(cells[i], "|", `\|`)
				cell = strings.ReplaceAll(cell, "\n", " ")
			}
			sb.WriteString(" " + cell + " |")
		}
		sb.WriteString("\n")
	}

	writeRow(columns)
	sb.WriteString("|" + strings.Repeat(" --- |", len(columns)) + "\n")
	for _, r := range rows {
		writeRow(r)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func firstString(body []byte, paths ...string) string {
	for _, p := range paths {
		if v := gjson.GetBytes(body, p).String(); v != "" {
			return v
		}
	}
	return ""
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

