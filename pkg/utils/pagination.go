package utils

import (
	"net/url"
	"strconv"
)

const (
	DefaultLimit = 20
	MaxLimit     = 200
)

// ParsePaginationParams понимает limit+page или limit+offset.
func ParsePaginationParams(values url.Values) (limit uint64, offset uint64) {
	limit = DefaultLimit
	page := uint64(1)

	if limitStr := values.Get("limit"); limitStr != "" {
		if l, err := strconv.ParseUint(limitStr, 10, 64); err == nil && l > 0 {
			if l > MaxLimit {
				limit = MaxLimit
			} else {
				limit = l
			}
		}
	}

	if offsetStr := values.Get("offset"); offsetStr != "" {
		if o, err := strconv.ParseUint(offsetStr, 10, 64); err == nil {
			return limit, o
		}
	}

	if pageStr := values.Get("page"); pageStr != "" {
		if p, err := strconv.ParseUint(pageStr, 10, 64); err == nil && p > 0 {
			page = p
		}
	}

	offset = (page - 1) * limit
	return
}
