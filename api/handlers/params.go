package handlers

import (
	"fmt"
	"strconv"
	"time"

	"messenger/services"

	"github.com/gin-gonic/gin"
)

func parseTime(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: expected RFC3339 timestamp", name)
	}
	t = t.UTC()
	return &t, nil
}

func parseLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	return limit, nil
}

func parsePage(c *gin.Context) (services.Page, error) {
	var page services.Page
	var err error
	if page.After, err = parseTime(c, "after"); err != nil {
		return page, err
	}
	if page.Before, err = parseTime(c, "before"); err != nil {
		return page, err
	}
	if page.Limit, err = parseLimit(c); err != nil {
		return page, err
	}
	return page, nil
}
