package filter

import (
	"github.com/rushteam/hybridrec/core"
)

// BlacklistFilter 是黑名单过滤器，过滤掉黑名单中的物品（例如用户已看过/已屏蔽）。
type BlacklistFilter struct {
	ids map[string]struct{}
}

// NewBlacklistFilter 创建一个黑名单过滤器。
func NewBlacklistFilter(itemIDs []string) *BlacklistFilter {
	ids := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		ids[id] = struct{}{}
	}
	return &BlacklistFilter{ids: ids}
}

func (f *BlacklistFilter) Name() string {
	return "filter.blacklist"
}

func (f *BlacklistFilter) ShouldFilter(c *core.Candidate) (bool, error) {
	if c == nil {
		return true, nil
	}
	_, blocked := f.ids[c.ID]
	return blocked, nil
}
