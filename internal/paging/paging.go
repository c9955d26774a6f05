package paging

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultSize = 20
	MaxSize     = 100
)

var ErrInvalid = errors.New("invalid pagination parameters")

// Request selects a 1-based page of Size items.
type Request struct {
	Page int
	Size int
}

// Normalize applies defaults: page 1, size DefaultSize, size capped at MaxSize.
func (r Request) Normalize() Request {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Size <= 0 {
		r.Size = DefaultSize
	}
	if r.Size > MaxSize {
		r.Size = MaxSize
	}
	return r
}

func (r Request) Offset() int {
	n := r.Normalize()
	return (n.Page - 1) * n.Size
}

func (r Request) Limit() int {
	return r.Normalize().Size
}

// FromQuery reads page and size. Absent values fall back to defaults,
// malformed or out-of-range ones are rejected.
func FromQuery(q url.Values) (Request, error) {
	page, err := intParam(q.Get("page"), 1, 1, 1<<30)
	if err != nil {
		return Request{}, fmt.Errorf("%w: page must be a positive integer", ErrInvalid)
	}
	size, err := intParam(q.Get("size"), DefaultSize, 1, MaxSize)
	if err != nil {
		return Request{}, fmt.Errorf("%w: size must be between 1 and %d", ErrInvalid, MaxSize)
	}
	return Request{Page: page, Size: size}, nil
}

func intParam(raw string, def, min, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v < min || v > max {
		return 0, ErrInvalid
	}
	return v, nil
}

// Result is one page of items plus totals.
type Result[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	Size       int `json:"size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func NewResult[T any](items []T, req Request, total int) Result[T] {
	req = req.Normalize()
	if items == nil {
		items = []T{}
	}
	return Result[T]{
		Items:      items,
		Page:       req.Page,
		Size:       req.Size,
		Total:      total,
		TotalPages: (total + req.Size - 1) / req.Size,
	}
}

// Slice returns the requested window of an in-memory list.
func Slice[T any](all []T, req Request) []T {
	off, lim := req.Offset(), req.Limit()
	if off >= len(all) {
		return []T{}
	}
	end := off + lim
	if end > len(all) {
		end = len(all)
	}
	out := make([]T, end-off)
	copy(out, all[off:end])
	return out
}
