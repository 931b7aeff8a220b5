package websocket

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/charging-platform/charge-station-simulator/internal/config"
	"github.com/charging-platform/charge-station-simulator/internal/logger"
	"github.com/charging-platform/charge-station-simulator/internal/metrics"
)

// Subprotocol OCPP子协议协商值
const (
	SubprotocolOCPP16  = "ocpp1.6"
	SubprotocolOCPP201 = "ocpp2.0.1"
)

// Client 站点侧WebSocket客户端，实现路由器的Transport接口
type Client struct {
	stationID   string
	endpoint    string
	subprotocol string

	wsConfig   config.WebSocketConfig
	csmsConfig config.CSMSConfig

	conn    *websocket.Conn
	writeMu sync.Mutex
	connMu  sync.RWMutex

	// 回调
	onFrame func(data []byte)
	onOpen  func()
	onClose func(err error)

	pingRestartCh chan time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup

	logger *logger.Logger
}

// NewClient 创建站点WebSocket客户端
func NewClient(stationID string, subprotocol string, csmsConfig config.CSMSConfig, wsConfig config.WebSocketConfig, log *logger.Logger) (*Client, error) {
	if log == nil {
		log, _ = logger.New(logger.DefaultConfig())
	}

	base, err := url.Parse(csmsConfig.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid CSMS url %s: %w", csmsConfig.URL, err)
	}
	base.Path = base.Path + "/" + stationID

	return &Client{
		stationID:     stationID,
		endpoint:      base.String(),
		subprotocol:   subprotocol,
		wsConfig:      wsConfig,
		csmsConfig:    csmsConfig,
		pingRestartCh: make(chan time.Duration, 1),
		stopCh:        make(chan struct{}),
		logger:        log.WithStation(stationID),
	}, nil
}

// SetOnFrame 设置入站帧回调
func (c *Client) SetOnFrame(fn func(data []byte)) { c.onFrame = fn }

// SetOnOpen 设置连接建立回调
func (c *Client) SetOnOpen(fn func()) { c.onOpen = fn }

// SetOnClose 设置连接断开回调
func (c *Client) SetOnClose(fn func(err error)) { c.onClose = fn }

// Start 启动连接维护循环：连接、读取、断线重连
func (c *Client) Start() {
	c.wg.Add(1)
	go c.connectionLoop()

	c.wg.Add(1)
	go c.pingLoop()
}

// connectionLoop 连接维护循环
func (c *Client) connectionLoop() {
	defer c.wg.Done()

	attempts := 0
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		if err := c.dial(); err != nil {
			attempts++
			c.logger.Warnf("Failed to connect to CSMS (attempt %d): %v", attempts, err)
			if c.csmsConfig.MaxReconnects > 0 && attempts >= c.csmsConfig.MaxReconnects {
				c.logger.Error("Max reconnect attempts reached, giving up")
				return
			}
			select {
			case <-time.After(c.csmsConfig.ReconnectInterval):
				continue
			case <-c.stopCh:
				return
			}
		}

		attempts = 0
		metrics.ConnectedStations.Inc()
		if c.onOpen != nil {
			c.onOpen()
		}

		readErr := c.readLoop()
		metrics.ConnectedStations.Dec()

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()

		if c.onClose != nil {
			c.onClose(readErr)
		}

		select {
		case <-c.stopCh:
			return
		case <-time.After(c.csmsConfig.ReconnectInterval):
		}
	}
}

// dial 建立WebSocket连接并协商子协议
func (c *Client) dial() error {
	dialer := websocket.Dialer{
		ReadBufferSize:   c.wsConfig.ReadBufferSize,
		WriteBufferSize:  c.wsConfig.WriteBufferSize,
		HandshakeTimeout: c.wsConfig.HandshakeTimeout,
		Subprotocols:     []string{c.subprotocol},
	}

	header := http.Header{}
	if c.csmsConfig.BasicAuthUser != "" {
		header.Set("Authorization", basicAuth(c.csmsConfig.BasicAuthUser, c.csmsConfig.BasicAuthPassword))
	}

	conn, _, err := dialer.Dial(c.endpoint, header)
	if err != nil {
		return err
	}

	if conn.Subprotocol() != c.subprotocol {
		conn.Close()
		return fmt.Errorf("CSMS did not accept subprotocol %s", c.subprotocol)
	}

	conn.SetReadLimit(c.wsConfig.MaxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.wsConfig.PingInterval + c.wsConfig.PongTimeout))
	})
	conn.SetReadDeadline(time.Now().Add(c.wsConfig.PingInterval + c.wsConfig.PongTimeout))

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.logger.Infof("Connected to CSMS at %s (%s)", c.endpoint, c.subprotocol)
	return nil
}

// readLoop 读取入站帧直到连接断开
func (c *Client) readLoop() error {
	for {
		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()
		if conn == nil {
			return nil
		}

		messageType, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopCh:
				return nil
			default:
			}
			c.logger.Warnf("Read error, connection lost: %v", err)
			return err
		}

		if messageType != websocket.TextMessage {
			continue
		}

		if c.onFrame != nil {
			c.onFrame(data)
		}
	}
}

// pingLoop 周期性发送ping保活，间隔可通过RestartPing动态调整
func (c *Client) pingLoop() {
	defer c.wg.Done()

	interval := c.wsConfig.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case newInterval := <-c.pingRestartCh:
			if newInterval > 0 {
				interval = newInterval
			}
			ticker.Reset(interval)
		case <-ticker.C:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()
			if conn == nil {
				continue
			}
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.wsConfig.PongTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debugf("Ping failed: %v", err)
			}
		}
	}
}

// RestartPing 以新间隔重启保活任务
func (c *Client) RestartPing(interval time.Duration) {
	select {
	case c.pingRestartCh <- interval:
	default:
	}
}

// Send 实现Transport接口，发送一帧文本数据
func (c *Client) Send(data []byte) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return fmt.Errorf("websocket closed")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.wsConfig.PongTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// IsOpen 实现Transport接口
func (c *Client) IsOpen() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn != nil
}

// Stop 关闭客户端
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.wg.Wait()
}

// basicAuth 构造Basic认证头
func basicAuth(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}
