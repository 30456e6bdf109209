package feed

import (
	"strings"
	"time"
)

// Offer 外部 feed 中的一条库存 offer。
// StockStatus 表示是否在库（ACTIVE 等），Status 是业务状态（active / reserved / sold...）。
type Offer struct {
	StockStatus string `json:"stock_status"`
	Status      string `json:"status"`
	Branch      string `json:"branch"`
	Location    string `json:"location"`
}

// PriceBlock 外部报价块。List 是挂牌价；Alt 是第二币种报价（可选）。
type PriceBlock struct {
	List        float64                `json:"list"`
	Currency    string                 `json:"currency"`
	Alt         float64                `json:"alt,omitempty"`
	AltCurrency string                 `json:"alt_currency,omitempty"`
	Raw         map[string]interface{} `json:"raw,omitempty"`
}

// Record 外部车源记录（已归一化）。
type Record struct {
	OriginCode string `json:"origin_code"`
	Plate      string `json:"plate"`

	Make        string `json:"make"`
	Model       string `json:"model"`
	Trim        string `json:"trim,omitempty"`
	Description string `json:"description,omitempty"`

	Year     int `json:"year"`
	Odometer int `json:"odometer"`

	Condition    string   `json:"condition,omitempty"`
	Transmission string   `json:"transmission,omitempty"`
	Fuel         string   `json:"fuel,omitempty"`
	Segment      string   `json:"segment,omitempty"`
	Colors       []string `json:"colors,omitempty"`

	Prices PriceBlock `json:"prices"`
	Offers []Offer    `json:"offers"`
	Images []string   `json:"images,omitempty"`

	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// NaturalKey 跨运行对账用的自然键：车牌优先，缺车牌时退回 origin code。
func (r *Record) NaturalKey() string {
	if p := strings.TrimSpace(r.Plate); p != "" {
		return p
	}
	return strings.TrimSpace(r.OriginCode)
}

// Title 拼接对外展示标题（品牌 型号 配置）。
func (r *Record) Title() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{r.Make, r.Model, r.Trim} {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// ActiveOffer 返回第一条在库 offer（stock_status == ACTIVE，不区分大小写）。
// 没有则返回 nil。
func (r *Record) ActiveOffer() *Offer {
	for i := range r.Offers {
		if strings.EqualFold(strings.TrimSpace(r.Offers[i].StockStatus), "ACTIVE") {
			return &r.Offers[i]
		}
	}
	return nil
}

// ImageURLs 返回去重、去空白后的图片地址列表（保持 feed 顺序）。
func (r *Record) ImageURLs() []string {
	out := make([]string, 0, len(r.Images))
	seen := make(map[string]struct{}, len(r.Images))
	for _, u := range r.Images {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func normalizeRecord(r Record) Record {
	r.OriginCode = strings.TrimSpace(r.OriginCode)
	r.Plate = strings.TrimSpace(r.Plate)
	r.Make = strings.TrimSpace(r.Make)
	r.Model = strings.TrimSpace(r.Model)
	r.Trim = strings.TrimSpace(r.Trim)
	r.Description = strings.TrimSpace(r.Description)
	return r
}
