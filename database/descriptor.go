package database

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/BaSui01/dbmux/config"
)

// FetchMode 结果集取值方式
type FetchMode int

const (
	// FetchAssoc 列值中的 []byte 转为 string（默认）
	FetchAssoc FetchMode = iota
	// FetchRaw 保留驱动返回的原始值
	FetchRaw
)

// String 返回配置中使用的名称
func (m FetchMode) String() string {
	switch m {
	case FetchRaw:
		return "raw"
	default:
		return "assoc"
	}
}

// ParseFetchMode 解析配置值，空串视为 assoc
func ParseFetchMode(s string) (FetchMode, error) {
	switch s {
	case "", "assoc":
		return FetchAssoc, nil
	case "raw":
		return FetchRaw, nil
	default:
		return FetchAssoc, fmt.Errorf("unknown fetch mode %q", s)
	}
}

// Descriptor 描述一个逻辑数据库：写/读目标、表前缀、取值方式与连接器
type Descriptor interface {
	WriteTargets() []Target
	ReadTargets() []Target
	// HasReadTargets 是否配置了读目标，不推进选择器
	HasReadTargets() bool
	Prefix() string
	FetchMode() FetchMode
	Connector() Connector
}

// ReaderSelector 决定读目标列表的顺序，index 0 即本次重连使用的目标
type ReaderSelector interface {
	Order(targets []Target) []Target
}

// RoundRobinReaderSelector 轮询读目标
type RoundRobinReaderSelector struct {
	next atomic.Uint64
}

// Order 将列表旋转一个位置后返回副本
func (s *RoundRobinReaderSelector) Order(targets []Target) []Target {
	n := len(targets)
	if n <= 1 {
		return targets
	}
	start := int((s.next.Add(1) - 1) % uint64(n))
	out := make([]Target, 0, n)
	out = append(out, targets[start:]...)
	out = append(out, targets[:start]...)
	return out
}

// StaticDescriptor 由配置构建的固定描述
type StaticDescriptor struct {
	writes    []Target
	reads     []Target
	prefix    string
	fetchMode FetchMode
	connector Connector
	selector  ReaderSelector
}

// DescriptorOption 配置 StaticDescriptor
type DescriptorOption func(*StaticDescriptor)

// WithReaderSelector 替换读目标选择器
func WithReaderSelector(sel ReaderSelector) DescriptorOption {
	return func(d *StaticDescriptor) {
		d.selector = sel
	}
}

// NewStaticDescriptor 直接由目标列表构建
func NewStaticDescriptor(writes, reads []Target, prefix string, mode FetchMode, connector Connector, opts ...DescriptorOption) *StaticDescriptor {
	d := &StaticDescriptor{
		writes:    writes,
		reads:     reads,
		prefix:    prefix,
		fetchMode: mode,
		connector: connector,
		selector:  &RoundRobinReaderSelector{},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// DescriptorFromConfig 由配置构建描述，目标名为 write-N / read-N
func DescriptorFromConfig(cfg config.DatabaseConfig, connector Connector, opts ...DescriptorOption) (*StaticDescriptor, error) {
	if len(cfg.Write) == 0 {
		return nil, fmt.Errorf("database: at least one write target is required")
	}
	mode, err := ParseFetchMode(cfg.FetchMode)
	if err != nil {
		return nil, err
	}
	return NewStaticDescriptor(
		targetsFrom("write", cfg.Driver, cfg.Write),
		targetsFrom("read", cfg.Driver, cfg.Read),
		cfg.Prefix,
		mode,
		connector,
		opts...,
	), nil
}

func targetsFrom(role, driver string, dsns []string) []Target {
	out := make([]Target, 0, len(dsns))
	for i, dsn := range dsns {
		out = append(out, Target{
			Name:   role + "-" + strconv.Itoa(i),
			Driver: driver,
			DSN:    dsn,
		})
	}
	return out
}

// WriteTargets 写目标
func (d *StaticDescriptor) WriteTargets() []Target { return d.writes }

// ReadTargets 读目标，顺序由选择器决定
func (d *StaticDescriptor) ReadTargets() []Target {
	if d.selector == nil {
		return d.reads
	}
	return d.selector.Order(d.reads)
}

// HasReadTargets 实现 Descriptor
func (d *StaticDescriptor) HasReadTargets() bool { return len(d.reads) > 0 }

// Prefix 表前缀
func (d *StaticDescriptor) Prefix() string { return d.prefix }

// FetchMode 取值方式
func (d *StaticDescriptor) FetchMode() FetchMode { return d.fetchMode }

// Connector 连接器
func (d *StaticDescriptor) Connector() Connector { return d.connector }
