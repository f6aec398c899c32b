package model

// Page is the pagination envelope shared by list endpoints.
type Page struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasPrev    bool `json:"has_prev"`
	HasNext    bool `json:"has_next"`
}

// NewPage computes page metadata, clamping page into [1, total_pages].
func NewPage(total, page, pageSize int) Page {
	if pageSize < 1 {
		pageSize = 1
	}
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	return Page{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasPrev:    page > 1,
		HasNext:    page < totalPages,
	}
}

// Offset is the number of rows skipped before this page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// RequestPage is one page of requests.
type RequestPage struct {
	Items []Request `json:"items"`
	Page
}

// TrashPage is one page of the trash listing.
type TrashPage struct {
	Items []TrashItem `json:"items"`
	Page
}
