package repository

import (
	"context"
	"testing"

	"weatherdash/internal/config"
	"weatherdash/internal/db/dbtest"
	"weatherdash/internal/types"
)

func newTestRepo(t *testing.T) WeatherRepository {
	t.Helper()
	repo, err := NewRepository(dbtest.Open(t), config.DefaultTables())
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	return repo
}

func sample(key string, ts int64, temp float64) types.WeatherSample {
	return types.WeatherSample{
		StationKey:  key,
		Timestamp:   ts,
		Temperature: types.Float(temp),
		Quality:     types.String("G"),
		Latitude:    types.Float(59.35),
		Longitude:   types.Float(17.95),
		Height:      types.Float(14),
		StationName: types.String("Stockholm-Bromma"),
		Owner:       "user-1",
	}
}

func TestNewRepository_RejectsUnsafeTableNames(t *testing.T) {
	tables := config.DefaultTables()
	tables.WeatherStationData = "data; DROP TABLE x"
	if _, err := NewRepository(nil, tables); err == nil {
		t.Fatal("NewRepository: err = nil; want error for unsafe table name")
	}
}

func TestGetStation_Missing(t *testing.T) {
	repo := newTestRepo(t)
	st, err := repo.GetStation(context.Background(), "97200")
	if err != nil {
		t.Fatalf("GetStation: %v", err)
	}
	if st != nil {
		t.Fatalf("GetStation: got %+v, want nil", st)
	}
}

func TestCreateStation_IsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	got, created, err := repo.CreateStation(ctx, types.WeatherStation{StationKey: "97200", Owner: "user-1"})
	if err != nil {
		t.Fatalf("CreateStation: %v", err)
	}
	if !created || got.Owner != "user-1" {
		t.Fatalf("CreateStation: got %+v created=%v", got, created)
	}

	got, created, err = repo.CreateStation(ctx, types.WeatherStation{StationKey: "97200", Owner: "user-2"})
	if err != nil {
		t.Fatalf("CreateStation (again): %v", err)
	}
	if created {
		t.Error("second CreateStation reported created=true")
	}
	if got.Owner != "user-1" {
		t.Errorf("second CreateStation owner = %q; want the stored user-1", got.Owner)
	}

	stations, err := repo.ListStations(ctx)
	if err != nil {
		t.Fatalf("ListStations: %v", err)
	}
	if len(stations) != 1 {
		t.Fatalf("ListStations: got %d stations, want 1", len(stations))
	}
}

func TestListStations_OrderedByKey(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	for _, k := range []string{"98210", "97200", "97400"} {
		if _, _, err := repo.CreateStation(ctx, types.WeatherStation{StationKey: k, Owner: "u"}); err != nil {
			t.Fatalf("CreateStation %s: %v", k, err)
		}
	}
	stations, err := repo.ListStations(ctx)
	if err != nil {
		t.Fatalf("ListStations: %v", err)
	}
	want := []string{"97200", "97400", "98210"}
	for i, st := range stations {
		if st.StationKey != want[i] {
			t.Errorf("stations[%d] = %q; want %q", i, st.StationKey, want[i])
		}
	}
}

func TestInsertSample_RoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	in := sample("97200", 1700000000, 2.5)

	stored, created, err := repo.InsertSample(ctx, in)
	if err != nil {
		t.Fatalf("InsertSample: %v", err)
	}
	if !created {
		t.Fatal("InsertSample: created = false on first insert")
	}
	if stored.Key() != in.Key() {
		t.Errorf("stored key = %s; want %s", stored.Key(), in.Key())
	}

	got, err := repo.GetSample(ctx, in.Key())
	if err != nil {
		t.Fatalf("GetSample: %v", err)
	}
	if got == nil {
		t.Fatal("GetSample: nil after insert")
	}
	if *got.Temperature != 2.5 || *got.Quality != "G" || got.Owner != "user-1" || *got.StationName != "Stockholm-Bromma" {
		t.Errorf("GetSample: got %+v", got)
	}
}

func TestInsertSample_NullableFields(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	in := types.WeatherSample{StationKey: "97200", Timestamp: 1, Owner: "u"}
	if _, _, err := repo.InsertSample(ctx, in); err != nil {
		t.Fatalf("InsertSample: %v", err)
	}
	got, err := repo.GetSample(ctx, in.Key())
	if err != nil || got == nil {
		t.Fatalf("GetSample: got %v err %v", got, err)
	}
	if got.Temperature != nil || got.Quality != nil || got.Latitude != nil || got.StationName != nil {
		t.Errorf("expected nil optional fields; got %+v", got)
	}
}

func TestInsertSample_DuplicateReturnsStoredRecord(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, _, err := repo.InsertSample(ctx, sample("97200", 1700000000, 2.5)); err != nil {
		t.Fatalf("InsertSample: %v", err)
	}
	stored, created, err := repo.InsertSample(ctx, sample("97200", 1700000000, 9.9))
	if err != nil {
		t.Fatalf("InsertSample (duplicate): %v", err)
	}
	if created {
		t.Error("duplicate InsertSample reported created=true")
	}
	if *stored.Temperature != 2.5 {
		t.Errorf("duplicate InsertSample temperature = %v; want first-write 2.5", *stored.Temperature)
	}

	all, err := repo.ListSamples(ctx, SampleQuery{StationKey: "97200"})
	if err != nil {
		t.Fatalf("ListSamples: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("ListSamples: got %d samples, want 1", len(all))
	}
}

func TestListSamples_WindowLimitAndOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	for _, ts := range []int64{100, 200, 300, 400, 500} {
		if _, _, err := repo.InsertSample(ctx, sample("97200", ts, float64(ts))); err != nil {
			t.Fatalf("InsertSample %d: %v", ts, err)
		}
	}
	if _, _, err := repo.InsertSample(ctx, sample("98210", 300, 0)); err != nil {
		t.Fatalf("InsertSample other station: %v", err)
	}

	tests := []struct {
		name string
		q    SampleQuery
		want []int64
	}{
		{"all for station", SampleQuery{StationKey: "97200"}, []int64{500, 400, 300, 200, 100}},
		{"limit", SampleQuery{StationKey: "97200", Limit: 2}, []int64{500, 400}},
		{"from", SampleQuery{StationKey: "97200", From: 300}, []int64{500, 400, 300}},
		{"to", SampleQuery{StationKey: "97200", To: 200}, []int64{200, 100}},
		{"window", SampleQuery{StationKey: "97200", From: 200, To: 400}, []int64{400, 300, 200}},
		{"every station", SampleQuery{From: 300, To: 300}, []int64{300, 300}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ListSamples(ctx, tt.q)
			if err != nil {
				t.Fatalf("ListSamples: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ListSamples: got %d samples, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].Timestamp != tt.want[i] {
					t.Errorf("samples[%d].Timestamp = %d; want %d", i, got[i].Timestamp, tt.want[i])
				}
			}
		})
	}
}

func TestDeleteSample(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	in := sample("97200", 1700000000, 2.5)
	if _, _, err := repo.InsertSample(ctx, in); err != nil {
		t.Fatalf("InsertSample: %v", err)
	}

	deleted, err := repo.DeleteSample(ctx, in.Key())
	if err != nil {
		t.Fatalf("DeleteSample: %v", err)
	}
	if deleted == nil || deleted.Owner != "user-1" {
		t.Fatalf("DeleteSample: got %+v; want the removed record", deleted)
	}

	again, err := repo.DeleteSample(ctx, in.Key())
	if err != nil {
		t.Fatalf("DeleteSample (again): %v", err)
	}
	if again != nil {
		t.Errorf("DeleteSample of missing record: got %+v, want nil", again)
	}
}

func TestRepository_CustomTableNames(t *testing.T) {
	tables := config.Tables{
		WeatherStation:     "ws_prod",
		WeatherStationData: "wsd_prod",
		Devices:            "dev_prod",
		Telemetry:          "tel_prod",
	}
	repo, err := NewRepository(dbtest.OpenWithTables(t, tables), tables)
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	if _, _, err := repo.InsertSample(context.Background(), sample("97200", 1, 1)); err != nil {
		t.Fatalf("InsertSample into custom table: %v", err)
	}
}
