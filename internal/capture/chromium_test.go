package capture

import (
	"context"
	"testing"
	"time"
)

func TestMonthURL(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"year and month", Options{BaseURL: "http://127.0.0.1:8080", Year: 2025, Month: time.December},
			"http://127.0.0.1:8080/calendar?month=12&year=2025"},
		{"current month", Options{BaseURL: "http://localhost:9000/ignored"},
			"http://localhost:9000/calendar"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MonthURL(tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("MonthURL = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := MonthURL(Options{BaseURL: "not a url"}); err == nil {
		t.Error("invalid base URL accepted")
	}
}

func TestCaptureValidatesOptions(t *testing.T) {
	err := CaptureMonthPNG(context.Background(), Options{BaseURL: "http://127.0.0.1:8080"})
	if err == nil {
		t.Error("missing OutputPath accepted")
	}
}
