package processor

import "context"

type replayKey struct{}

// WithReplay 标记调用为并发重放，tag 从 1 开始；重放调用不会打开实时编辑器
func WithReplay(ctx context.Context, tag int) context.Context {
	return context.WithValue(ctx, replayKey{}, tag)
}

// ReplayTag 返回重放序号
func ReplayTag(ctx context.Context) (int, bool) {
	tag, ok := ctx.Value(replayKey{}).(int)
	return tag, ok
}
