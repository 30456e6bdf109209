package catalog

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StockEntry 库存快照中的一条 offer（来自外部 feed，原样留存供审计）。
type StockEntry struct {
	StockStatus string `json:"stock_status,omitempty"` // 是否在库（ACTIVE 等）
	Status      string `json:"status,omitempty"`       // 业务状态（active / reserved / sold...）
	Branch      string `json:"branch,omitempty"`       // 门店/营业处
	Location    string `json:"location,omitempty"`     // 所在地
}

// Extra 车辆的半结构化补充文档，整体存为 JSON 列。
// 审计字段（filter_reason / cleanup_verification / archived_at）只在下架时写入；
// Meta 留给上游透传的自由字段。
type Extra struct {
	Stock     []StockEntry           `json:"stock,omitempty"`
	Colors    []string               `json:"colors,omitempty"`
	RawPrices map[string]interface{} `json:"raw_prices,omitempty"`

	FilterReason        string     `json:"filter_reason,omitempty"`
	CleanupVerification string     `json:"cleanup_verification,omitempty"`
	ArchivedAt          *time.Time `json:"archived_at,omitempty"`

	Meta map[string]interface{} `json:"meta,omitempty"`
}

// Value 实现 driver.Valuer，写库时序列化为 JSON。
func (e Extra) Value() (driver.Value, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extra: %w", err)
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner，读库时从 JSON 反序列化。
func (e *Extra) Scan(value interface{}) error {
	if value == nil {
		*e = Extra{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported extra column type %T", value)
	}
	if len(data) == 0 {
		*e = Extra{}
		return nil
	}
	return json.Unmarshal(data, e)
}

// ClearAudit 清掉下架审计字段（重新上架时调用）。
func (e *Extra) ClearAudit() {
	e.FilterReason = ""
	e.CleanupVerification = ""
	e.ArchivedAt = nil
}
