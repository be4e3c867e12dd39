package service

import "time"

// SetClock 替换服务内部使用的时钟，用于回放与测试。非本包实现的服务会被忽略。
func SetClock(index IndexService, search SearchService, stats StatsService, now func() time.Time) {
	if s, ok := index.(*indexService); ok {
		s.now = now
	}
	if s, ok := search.(*searchService); ok {
		s.now = now
	}
	if s, ok := stats.(*statsService); ok {
		s.now = now
	}
}
