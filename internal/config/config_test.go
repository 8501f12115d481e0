package config

import "testing"

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Service.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want 127.0.0.1", cfg.Service.Host)
	}
	if cfg.Service.Port != 8000 {
		t.Errorf("Port = %d, want 8000", cfg.Service.Port)
	}
	if cfg.Service.PythonBin != "python3" {
		t.Errorf("PythonBin = %q, want python3", cfg.Service.PythonBin)
	}
	if cfg.Graph.VocabRefreshEvery != 50 {
		t.Errorf("VocabRefreshEvery = %d, want 50", cfg.Graph.VocabRefreshEvery)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("CLARITY_PYTHON", "/opt/python/bin/python")
	t.Setenv("CLARITY_EMBED_SCRIPT", "/srv/embed/server.py")
	t.Setenv("CLARITY_EMBED_DIR", "/srv/embed")
	t.Setenv("CLARITY_EMBED_HOST", "10.0.0.5")
	t.Setenv("CLARITY_EMBED_PORT", "9100")
	t.Setenv("CLARITY_EMBED_URL", "http://embed.internal:9100")
	t.Setenv("CLARITY_EMBED_MODEL", "all-mpnet-base-v2")

	cfg := FromEnv()

	if cfg.Service.PythonBin != "/opt/python/bin/python" {
		t.Errorf("PythonBin = %q", cfg.Service.PythonBin)
	}
	if cfg.Service.ScriptPath != "/srv/embed/server.py" {
		t.Errorf("ScriptPath = %q", cfg.Service.ScriptPath)
	}
	if cfg.Service.WorkDir != "/srv/embed" {
		t.Errorf("WorkDir = %q", cfg.Service.WorkDir)
	}
	if cfg.Service.Host != "10.0.0.5" {
		t.Errorf("Host = %q", cfg.Service.Host)
	}
	if cfg.Service.Port != 9100 {
		t.Errorf("Port = %d", cfg.Service.Port)
	}
	if cfg.Service.BaseURL != "http://embed.internal:9100" {
		t.Errorf("BaseURL = %q", cfg.Service.BaseURL)
	}
	if cfg.Service.Model != "all-mpnet-base-v2" {
		t.Errorf("Model = %q", cfg.Service.Model)
	}
}

func TestFromEnv_InvalidPortIgnored(t *testing.T) {
	for _, bad := range []string{"abc", "-1", "0"} {
		t.Setenv("CLARITY_EMBED_PORT", bad)
		if got := FromEnv().Service.Port; got != 8000 {
			t.Errorf("Port = %d with CLARITY_EMBED_PORT=%q, want default 8000", got, bad)
		}
	}
}

func TestFromEnv_EmptyKeepsDefaults(t *testing.T) {
	t.Setenv("CLARITY_EMBED_HOST", "")
	if got := FromEnv().Service.Host; got != "127.0.0.1" {
		t.Errorf("Host = %q, want default when env is empty", got)
	}
}
