package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/DriveStockSync/DriveStockSync/internal/feed"
)

// Fingerprint 计算记录的内容指纹：对影响对外展示的字段做规范化投影后取 SHA-256。
// 图片地址先排序再参与散列，feed 换序返回同一组图不会被当成变更。
// 指纹相等时走轻量路径（只刷 last_synced_at），避免无意义的全量写。
func Fingerprint(rec *feed.Record) string {
	if rec == nil {
		return ""
	}

	images := rec.ImageURLs()
	sorted := make([]string, len(images))
	copy(sorted, images)
	sort.Strings(sorted)

	colors := make([]string, len(rec.Colors))
	copy(colors, rec.Colors)
	sort.Strings(colors)

	offerStatus := ""
	if offer := rec.ActiveOffer(); offer != nil {
		offerStatus = strings.ToLower(strings.TrimSpace(offer.Status))
	}

	var b strings.Builder
	write := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}

	write(rec.Make)
	write(rec.Model)
	write(rec.Trim)
	write(rec.Description)
	write(fmt.Sprintf("%d", rec.Year))
	write(fmt.Sprintf("%d", rec.Odometer))
	write(fmt.Sprintf("%.2f|%s", rec.Prices.List, rec.Prices.Currency))
	write(fmt.Sprintf("%.2f|%s", rec.Prices.Alt, rec.Prices.AltCurrency))
	write(rec.Condition)
	write(rec.Transmission)
	write(rec.Fuel)
	write(rec.Segment)
	write(strings.Join(colors, ","))
	write(rec.NaturalKey())
	write(strings.Join(sorted, ","))
	write(fmt.Sprintf("%d", len(sorted)))
	write(offerStatus)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
