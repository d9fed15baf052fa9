package service

import (
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// 房间码规则
const (
	RoomCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	RoomCodeLength   = 6
	maxCodeAttempts  = 10
)

// DefaultPresenceWindow 在线判定窗口
const DefaultPresenceWindow = 5 * time.Minute

// CodeGenerator 生成一个候选房间码
type CodeGenerator func() (string, error)

// NanoidCodeGenerator 从 [0-9A-Z] 中均匀抽取 6 个字符
func NanoidCodeGenerator() (string, error) {
	return nanoid.Generate(RoomCodeAlphabet, RoomCodeLength)
}

type options struct {
	clock          Clock
	codeGen        CodeGenerator
	presenceWindow time.Duration
}

// Option 配置 Service 的可替换依赖
type Option func(*options)

// WithClock 替换时钟
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithCodeGenerator 替换房间码生成器
func WithCodeGenerator(g CodeGenerator) Option {
	return func(o *options) { o.codeGen = g }
}

// WithPresenceWindow 修改在线判定窗口
func WithPresenceWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.presenceWindow = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		clock:          SystemClock,
		codeGen:        NanoidCodeGenerator,
		presenceWindow: DefaultPresenceWindow,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
