package snippets

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetPreset(t *testing.T) {
	s := openTestStore(t)

	saved, err := s.SavePreset(Preset{Name: "formal-short", Tone: 0.9, Length: 0.8})
	if err != nil {
		t.Fatalf("SavePreset: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("SavePreset did not assign an ID")
	}

	got, err := s.Preset(saved.ID)
	if err != nil {
		t.Fatalf("Preset: %v", err)
	}
	if got.Name != "formal-short" || got.Tone != 0.9 || got.Length != 0.8 {
		t.Errorf("got %+v, want saved values", got)
	}
}

func TestPresetNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Preset("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSavePresetOverwritesByName(t *testing.T) {
	s := openTestStore(t)

	first, err := s.SavePreset(Preset{Name: "casual", Tone: 0.1, Length: 0.5})
	if err != nil {
		t.Fatalf("SavePreset: %v", err)
	}
	if _, err := s.SavePreset(Preset{Name: "casual", Tone: 0.2, Length: 0.6}); err != nil {
		t.Fatalf("SavePreset overwrite: %v", err)
	}

	got, err := s.Preset(first.ID)
	if err != nil {
		t.Fatalf("Preset: %v", err)
	}
	if got.Tone != 0.2 || got.Length != 0.6 {
		t.Errorf("got tone=%.1f length=%.1f, want updated values", got.Tone, got.Length)
	}

	presets, err := s.ListPresets()
	if err != nil {
		t.Fatalf("ListPresets: %v", err)
	}
	if len(presets) != 1 {
		t.Errorf("got %d presets, want 1", len(presets))
	}
}

func TestListPresetsOrdered(t *testing.T) {
	s := openTestStore(t)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		if _, err := s.SavePreset(Preset{Name: name, Tone: 0.5, Length: 0.5}); err != nil {
			t.Fatalf("SavePreset(%s): %v", name, err)
		}
	}

	presets, err := s.ListPresets()
	if err != nil {
		t.Fatalf("ListPresets: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	if len(presets) != len(want) {
		t.Fatalf("got %d presets, want %d", len(presets), len(want))
	}
	for i, w := range want {
		if presets[i].Name != w {
			t.Errorf("presets[%d].Name = %q, want %q", i, presets[i].Name, w)
		}
	}
}

func TestDeletePreset(t *testing.T) {
	s := openTestStore(t)

	p, err := s.SavePreset(Preset{Name: "temp", Tone: 0.5, Length: 0.5})
	if err != nil {
		t.Fatalf("SavePreset: %v", err)
	}

	if err := s.DeletePreset(p.ID); err != nil {
		t.Fatalf("DeletePreset: %v", err)
	}
	if err := s.DeletePreset(p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		_, err := s.RecordEntry(Entry{
			Operation: "rewrite",
			Input:     "in",
			Output:    "out",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("RecordEntry: %v", err)
		}
	}

	entries, err := s.RecentEntries(2)
	if err != nil {
		t.Fatalf("RecentEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].CreatedAt.Before(entries[1].CreatedAt) {
		t.Error("entries not ordered most recent first")
	}
}
