package hotword_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/saccohuo/subpipe/internal/hotword"
)

func TestOpenSettings_CreatesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")
	st, err := hotword.OpenSettings(path)
	if err != nil {
		t.Fatalf("OpenSettings: %v", err)
	}

	got := st.Get()
	want := hotword.DefaultSettings()
	if got != want {
		t.Errorf("Get = %+v, want defaults %+v", got, want)
	}

	// The defaults must have been persisted.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("settings file not created: %v", err)
	}
}

func TestSettingsStore_UpdatePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")
	st, err := hotword.OpenSettings(path)
	if err != nil {
		t.Fatalf("OpenSettings: %v", err)
	}

	err = st.Update(func(s *hotword.Settings) {
		s.Mode = hotword.ModeExperiment
		s.MaxCount = 50
		s.PostProcess = false
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	reopened, err := hotword.OpenSettings(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got := reopened.Get()
	if got.Mode != hotword.ModeExperiment || got.MaxCount != 50 || got.PostProcess {
		t.Errorf("reopened settings = %+v", got)
	}
}

func TestSettingsStore_InvalidUpdateLeavesStoreUnchanged(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")
	st, err := hotword.OpenSettings(path)
	if err != nil {
		t.Fatalf("OpenSettings: %v", err)
	}
	before := st.Get()

	for name, fn := range map[string]func(*hotword.Settings){
		"bad mode":       func(s *hotword.Settings) { s.Mode = "turbo" },
		"negative count": func(s *hotword.Settings) { s.MaxCount = -1 },
		"huge count":     func(s *hotword.Settings) { s.MaxCount = 101 },
	} {
		if err := st.Update(fn); err == nil {
			t.Errorf("%s: Update succeeded, want error", name)
		}
	}
	if got := st.Get(); got != before {
		t.Errorf("store changed after failed updates: %+v", got)
	}
}

func TestOpenSettings_RejectsCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := hotword.OpenSettings(path); err == nil {
		t.Fatal("OpenSettings accepted corrupt file")
	}
}

func TestOpenSettings_RejectsOutOfRangeFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")
	body := `{"auto_hotwords":true,"post_process":true,"mode":"curated","max_count":999}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := hotword.OpenSettings(path)
	if err == nil || !strings.Contains(err.Error(), "max_count") {
		t.Fatalf("err = %v, want max_count range error", err)
	}
}
