package readapi

import (
	"errors"

	"github.com/DriveStockSync/DriveStockSync/internal/catalog"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type vehicleView struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Description       string   `json:"description,omitempty"`
	Year              int      `json:"year,omitempty"`
	Odometer          int      `json:"odometer,omitempty"`
	Plate             string   `json:"plate"`
	Price             *float64 `json:"price,omitempty"`
	PriceCurrency     string   `json:"price_currency,omitempty"`
	SecondaryPrice    *float64 `json:"secondary_price,omitempty"`
	SecondaryCurrency string   `json:"secondary_currency,omitempty"`
	Colors            []string `json:"colors,omitempty"`

	Images []imageView `json:"images,omitempty"`
}

type imageView struct {
	URL        string `json:"url"`
	LocalPath  string `json:"local_path,omitempty"`
	IsFeatured bool   `json:"is_featured"`
	SortOrder  int    `json:"sort_order"`
}

func toVehicleView(v *catalog.Vehicle) vehicleView {
	return vehicleView{
		ID:                v.ID,
		Title:             v.Title,
		Description:       v.Description,
		Year:              v.Year,
		Odometer:          v.Odometer,
		Plate:             v.Plate,
		Price:             v.Price,
		PriceCurrency:     v.PriceCurrency,
		SecondaryPrice:    v.SecondaryPrice,
		SecondaryCurrency: v.SecondaryCurrency,
		Colors:            v.Extra.Colors,
	}
}

// listVehicles 分页列出在架车辆。
// 屏蔽地点子串在读层再排除一遍，属于兜底的二次过滤，权威判断在同步侧。
func (s *Server) listVehicles(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := c.QueryInt("page_size", 20)
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	f := catalog.PublishedFilter{
		Brand:                  c.Query("brand"),
		Year:                   c.QueryInt("year", 0),
		MinPrice:               c.QueryFloat("min_price", 0),
		MaxPrice:               c.QueryFloat("max_price", 0),
		LegacyBlockedLocations: s.syncCfg.BlockedLocations,
		Offset:                 (page - 1) * pageSize,
		Limit:                  pageSize,
	}

	vehicles, total, err := s.reader.ListPublished(c.Context(), f)
	if err != nil {
		if s.log != nil {
			s.log.WithFields(map[string]interface{}{"error": err.Error()}).Error("list vehicles failed")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "query failed")
	}

	views := make([]vehicleView, 0, len(vehicles))
	for i := range vehicles {
		views = append(views, toVehicleView(&vehicles[i]))
	}

	return c.JSON(fiber.Map{
		"data": views,
		"meta": fiber.Map{
			"current_page": page,
			"page_size":    pageSize,
			"total":        total,
		},
	})
}

// getVehicle 车辆详情，仅在架车辆可见，附带图片列表。
func (s *Server) getVehicle(c *fiber.Ctx) error {
	id := c.Params("id")

	v, err := s.reader.FindByID(c.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "vehicle not found")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "query failed")
	}
	if v == nil || v.Status != catalog.StatusPublished {
		return fiber.NewError(fiber.StatusNotFound, "vehicle not found")
	}

	view := toVehicleView(v)

	imgs, err := s.reader.ListImages(c.Context(), v.ID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "query failed")
	}
	for _, img := range imgs {
		view.Images = append(view.Images, imageView{
			URL:        img.SourceURL,
			LocalPath:  img.LocalPath,
			IsFeatured: img.IsFeatured,
			SortOrder:  img.SortOrder,
		})
	}

	return c.JSON(fiber.Map{"data": view})
}

// listSyncRuns 管理端查看最近的同步运行审计。
func (s *Server) listSyncRuns(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	runs, err := s.reader.ListSyncRuns(c.Context(), limit)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "query failed")
	}

	type runView struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Status     string `json:"status"`
		Fetched    int    `json:"fetched"`
		Created    int    `json:"created"`
		Updated    int    `json:"updated"`
		Unchanged  int    `json:"unchanged"`
		Archived   int    `json:"archived"`
		Filtered   int    `json:"filtered"`
		Errors     int    `json:"errors"`
		Error      string `json:"error,omitempty"`
		StartedAt  string `json:"started_at"`
		FinishedAt string `json:"finished_at,omitempty"`
	}

	views := make([]runView, 0, len(runs))
	for _, r := range runs {
		rv := runView{
			ID:        r.ID,
			Type:      r.Type,
			Status:    r.Status,
			Fetched:   r.Fetched,
			Created:   r.Created,
			Updated:   r.Updated,
			Unchanged: r.Unchanged,
			Archived:  r.Archived,
			Filtered:  r.Filtered,
			Errors:    r.Errors,
			Error:     r.Error,
			StartedAt: r.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if r.FinishedAt != nil {
			rv.FinishedAt = r.FinishedAt.Format("2006-01-02T15:04:05Z07:00")
		}
		views = append(views, rv)
	}

	return c.JSON(fiber.Map{"data": views})
}
