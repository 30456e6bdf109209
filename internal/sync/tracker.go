package sync

// ValidSet 单次同步运行内确认有效的自然键集合。
// 作为显式值在编排器和清理阶段之间传递，不做全局状态，一次运行一个实例。
type ValidSet struct {
	keys map[string]struct{}
}

func NewValidSet() *ValidSet {
	return &ValidSet{keys: make(map[string]struct{})}
}

func (s *ValidSet) Add(key string) {
	if s == nil || key == "" {
		return
	}
	s.keys[key] = struct{}{}
}

func (s *ValidSet) Contains(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.keys[key]
	return ok
}

func (s *ValidSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Keys 返回集合快照（顺序不保证）。
func (s *ValidSet) Keys() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	return out
}
