package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/weathermesh/weathermesh/pkg/client"
	"github.com/weathermesh/weathermesh/pkg/types"
)

type stubGetter struct {
	readings map[string]types.Reading
	err      error
	gotID    string
}

func (s *stubGetter) Get(_ context.Context, id string) (map[string]types.Reading, error) {
	s.gotID = id
	return s.readings, s.err
}

func TestRun_PrintsStation(t *testing.T) {
	g := &stubGetter{readings: map[string]types.Reading{
		"IDS60901": {"id": "IDS60901", "air_temp": json.Number("13.3")},
	}}
	var out bytes.Buffer
	if err := run(context.Background(), g, "IDS60901", &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if g.gotID != "IDS60901" {
		t.Errorf("requested id: got %q", g.gotID)
	}
	if !strings.HasPrefix(out.String(), "## WEATHER DATA FOR IDS60901 ##\nair_temp: 13.3\n") {
		t.Errorf("output: got %q", out.String())
	}
}

func TestRun_NotFound(t *testing.T) {
	cases := []struct{ station, want string }{
		{"", "no weather data available"},
		{"X", "no weather data for station X"},
	}
	for _, tc := range cases {
		err := run(context.Background(), &stubGetter{err: client.ErrNotFound}, tc.station, &bytes.Buffer{})
		if err == nil || err.Error() != tc.want {
			t.Errorf("station %q: got %v, want %q", tc.station, err, tc.want)
		}
	}
}
