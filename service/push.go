package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"StoryToVideo-client/config"
	"StoryToVideo-client/pipeline"
)

// PushDialer 通过 websocket 订阅远端项目推送：{push_url}/projects/{id}
type PushDialer struct {
	baseURL string
	dialer  *websocket.Dialer
	logger  *slog.Logger
}

var _ pipeline.Dialer = (*PushDialer)(nil)

func NewPushDialer(pushURL string, handshakeTimeout time.Duration, logger *slog.Logger) *PushDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PushDialer{
		baseURL: strings.TrimRight(pushURL, "/"),
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		logger: logger.With("component", "push_dialer"),
	}
}

func NewPushDialerFromConfig(cfg *config.Config, logger *slog.Logger) *PushDialer {
	return NewPushDialer(cfg.API.PushURL, cfg.Timeout(), logger)
}

// URL 返回项目的推送地址
func (d *PushDialer) URL(projectID string) string {
	return d.baseURL + "/projects/" + url.PathEscape(projectID)
}

func (d *PushDialer) Dial(ctx context.Context, projectID string) (pipeline.Stream, error) {
	target := d.URL(projectID)
	conn, resp, err := d.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", target, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	d.logger.Debug("push connection established", "project_id", projectID, "url", target)

	s := &wsStream{
		conn:   conn,
		frames: make(chan frame),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

type frame struct {
	data []byte
	err  error
}

// wsStream 由单独的读协程拉取消息，Next 因此可以响应 ctx 取消
type wsStream struct {
	conn   *websocket.Conn
	frames chan frame
	done   chan struct{}
	once   sync.Once
}

func (s *wsStream) pump() {
	defer close(s.frames)
	for {
		typ, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case s.frames <- frame{err: err}:
			case <-s.done:
			}
			return
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		select {
		case s.frames <- frame{data: data}:
		case <-s.done:
			return
		}
	}
}

func (s *wsStream) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case f, ok := <-s.frames:
		if !ok {
			return nil, io.EOF
		}
		return f.data, f.err
	}
}

func (s *wsStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
