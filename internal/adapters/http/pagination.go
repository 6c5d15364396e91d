package http

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Page is a list response with offset pagination metadata.
type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// pageQuery reads offset and limit. Out-of-range limits fall back to def.
func pageQuery(c *fiber.Ctx, def, maxLimit int) Pagination {
	p := Pagination{Offset: max(c.QueryInt("offset", 0), 0), Limit: c.QueryInt("limit", def)}
	if p.Limit <= 0 || p.Limit > maxLimit {
		p.Limit = def
	}
	return p
}

// sendPage writes items with RFC 8288 Link headers for first/prev/next/last.
// A nil slice is sent as [].
func sendPage[T any](c *fiber.Ctx, items []T, p Pagination) error {
	if items == nil {
		items = []T{}
	}

	base := c.Path()
	link := func(offset int, rel string) string {
		return fmt.Sprintf(`<%s?offset=%d&limit=%d>; rel="%s"`, base, offset, p.Limit, rel)
	}
	links := []string{link(0, "first")}
	if p.Offset > 0 {
		links = append(links, link(max(p.Offset-p.Limit, 0), "prev"))
	}
	if p.Offset+p.Limit < p.Total {
		links = append(links, link(p.Offset+p.Limit, "next"))
	}
	links = append(links, link(max(p.Total-p.Limit, 0), "last"))
	c.Set("Link", strings.Join(links, ", "))

	return c.JSON(Page[T]{Data: items, Pagination: p})
}
