package source

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/weathermesh/weathermesh/pkg/types"
)

const stationFile = `id:IDS60901
name:Adelaide (West Terrace /  ngayirdapira)
state: SA
lat:-34.9
wind_spd_kmh:15
local_date_time:15/04:00pm
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "station.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	r, err := Load(writeFile(t, stationFile))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	checks := map[string]any{
		"id":              "IDS60901",
		"name":            "Adelaide (West Terrace /  ngayirdapira)",
		"state":           "SA",
		"lat":             json.Number("-34.9"),
		"wind_spd_kmh":    json.Number("15"),
		"local_date_time": "15/04:00pm",
	}
	for k, want := range checks {
		if got := r[k]; got != want {
			t.Errorf("%s: got %#v, want %#v", k, got, want)
		}
	}
}

func TestLoad_NoID(t *testing.T) {
	_, err := Load(writeFile(t, "air_temp: 13.3\n"))
	if !errors.Is(err, ErrNoID) {
		t.Fatalf("err: got %v, want ErrNoID", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatch_Reload(t *testing.T) {
	path := writeFile(t, "id: A\nair_temp: 1.0\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan types.Reading, 4)
	go Watch(ctx, path, func(r types.Reading) { got <- r })

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("id: A\nair_temp: 2.5\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	// A truncating write can surface as more than one event.
	deadline := time.After(3 * time.Second)
	for {
		select {
		case r := <-got:
			if r["air_temp"] == json.Number("2.5") {
				return
			}
		case <-deadline:
			t.Fatal("no reload with air_temp 2.5 observed")
		}
	}
}
