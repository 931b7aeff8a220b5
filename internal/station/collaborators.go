package station

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock 时钟抽象，测试注入用
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
}

// WallClock 真实时钟
type WallClock struct{}

// Now 当前时间
func (WallClock) Now() time.Time { return time.Now().UTC() }

// After 定时通道
func (WallClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Sleep 阻塞等待
func (WallClock) Sleep(d time.Duration) { time.Sleep(d) }

// RNG 随机源抽象：UUID、整数区间、浮动采样
type RNG interface {
	UUID() string
	IntBetween(min, max int) int
	FloatFluctuation(base float64, percent float64) float64
}

// DefaultRNG 默认随机源
type DefaultRNG struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewDefaultRNG 创建默认随机源
func NewDefaultRNG() *DefaultRNG {
	return &DefaultRNG{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// UUID 生成v4 UUID
func (r *DefaultRNG) UUID() string {
	return uuid.New().String()
}

// IntBetween 生成[min,max]区间随机整数
func (r *DefaultRNG) IntBetween(min, max int) int {
	if max <= min {
		return min
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return min + r.rnd.Intn(max-min+1)
}

// FloatFluctuation 在base附近按百分比浮动
func (r *DefaultRNG) FloatFluctuation(base float64, percent float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	delta := base * percent / 100
	return base - delta + r.rnd.Float64()*2*delta
}

// FtpClient 诊断上传使用的FTP客户端窄接口
type FtpClient interface {
	// Access 连接host[:port]，可选凭证。返回FTP应答码
	Access(host string, user, password string) (code int, err error)
	// TrackProgress 注册上传进度回调
	TrackProgress(fn func(bytes int64))
	// UploadFrom 上传内容为远端文件名。返回FTP应答码
	UploadFrom(reader io.Reader, remoteName string) (code int, err error)
	// Close 断开连接
	Close() error
}
