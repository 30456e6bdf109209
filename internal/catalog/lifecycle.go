package catalog

import (
	"fmt"
	"time"
)

// AllowTransition 定义车辆生命周期的允许流转关系。
// 同步引擎是唯一允许改 status 的写入方。
var AllowTransition = map[Status][]Status{
	StatusDraft:     {StatusPublished, StatusArchived},
	StatusPublished: {StatusArchived},
	StatusArchived:  {StatusPublished},
}

// CanTransition 判断 from -> to 是否是一个允许的状态流转。
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	allowed, ok := AllowTransition[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ApplyTransition 对车辆应用状态变更，并维护审计时间字段。
// 下架时写入 archived_at，重新上架时清空下架审计字段。
func ApplyTransition(v *Vehicle, to Status, now time.Time) error {
	if v == nil {
		return fmt.Errorf("vehicle is nil")
	}
	from := v.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid vehicle status transition: %s -> %s", from, to)
	}

	v.Status = to

	switch to {
	case StatusArchived:
		if v.Extra.ArchivedAt == nil {
			t := now
			v.Extra.ArchivedAt = &t
		}
	case StatusPublished:
		v.Extra.ClearAudit()
	}
	return nil
}
