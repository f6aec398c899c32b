package model

import "testing"

func TestNewPage(t *testing.T) {
	tests := []struct {
		total, page, size int
		want              Page
	}{
		{0, 1, 10, Page{Page: 1, PageSize: 10, Total: 0, TotalPages: 1}},
		{25, 2, 10, Page{Page: 2, PageSize: 10, Total: 25, TotalPages: 3, HasPrev: true, HasNext: true}},
		{25, 9, 10, Page{Page: 3, PageSize: 10, Total: 25, TotalPages: 3, HasPrev: true}},
		{10, 1, 10, Page{Page: 1, PageSize: 10, Total: 10, TotalPages: 1}},
	}
	for _, tt := range tests {
		if got := NewPage(tt.total, tt.page, tt.size); got != tt.want {
			t.Errorf("NewPage(%d, %d, %d) = %+v, want %+v", tt.total, tt.page, tt.size, got, tt.want)
		}
	}
}

func TestPageOffset(t *testing.T) {
	if got := NewPage(25, 3, 10).Offset(); got != 20 {
		t.Errorf("Offset() = %d, want 20", got)
	}
	if got := NewPage(0, 5, 10).Offset(); got != 0 {
		t.Errorf("Offset() on an empty list = %d, want 0", got)
	}
}
